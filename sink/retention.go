// sink/retention.go
package sink

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pruner deletes data older than a cutoff.
type Pruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionCleaner periodically deletes observations older than the
// configured retention period.
type RetentionCleaner struct {
	pruner        Pruner
	retentionDays int
	interval      time.Duration
	logger        *zap.Logger
	done          chan struct{}
	wg            sync.WaitGroup
	stopOnce      sync.Once
}

// NewRetentionCleaner starts a cleaner that runs once immediately and then
// hourly. Returns nil when retentionDays is 0 (disabled).
func NewRetentionCleaner(pruner Pruner, retentionDays int, logger *zap.Logger) *RetentionCleaner {
	if retentionDays <= 0 {
		return nil
	}

	rc := &RetentionCleaner{
		pruner:        pruner,
		retentionDays: retentionDays,
		interval:      time.Hour,
		logger:        logger.Named("retention"),
		done:          make(chan struct{}),
	}

	// Startup cleanup to catch up after downtime.
	rc.cleanup()

	rc.wg.Add(1)
	go rc.tickLoop()

	return rc
}

func (rc *RetentionCleaner) tickLoop() {
	defer rc.wg.Done()
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rc.cleanup()
		case <-rc.done:
			return
		}
	}
}

func (rc *RetentionCleaner) cleanup() {
	cutoff := time.Now().Add(-time.Duration(rc.retentionDays) * 24 * time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	rows, err := rc.pruner.DeleteBefore(ctx, cutoff)
	if err != nil {
		rc.logger.Error("Retention cleanup failed", zap.Error(err))
		return
	}
	if rows > 0 {
		rc.logger.Info("Deleted expired rows",
			zap.Int64("rows", rows),
			zap.Int("retention_days", rc.retentionDays))
	}
}

// Stop signals the cleaner to stop and waits for it to finish. Safe on nil.
func (rc *RetentionCleaner) Stop() {
	if rc == nil {
		return
	}
	rc.stopOnce.Do(func() {
		close(rc.done)
		rc.wg.Wait()
	})
}
