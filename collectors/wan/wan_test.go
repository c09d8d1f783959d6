package wan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-ping/ping"

	"netpoller/collectors"
)

func fakePing(stats map[string]*ping.Statistics) PingFunc {
	return func(_ context.Context, target string, _ int, _ time.Duration) (*ping.Statistics, error) {
		s, ok := stats[target]
		if !ok {
			return nil, errors.New("unknown host")
		}
		return s, nil
	}
}

func TestQuery(t *testing.T) {
	q := &Querier{Count: 5, Ping: fakePing(map[string]*ping.Statistics{
		"8.8.8.8":  {PacketsSent: 5, PacketsRecv: 5, MinRtt: 10 * time.Millisecond, AvgRtt: 12500 * time.Microsecond, MaxRtt: 20 * time.Millisecond},
		"10.0.0.1": {PacketsSent: 5, PacketsRecv: 0, PacketLoss: 100},
	})}

	tests := []struct {
		target  string
		success bool
		loss    float64
		avg     float64
	}{
		{"8.8.8.8", true, 0, 12.5},
		{"10.0.0.1", false, 100, 0},
		{"nowhere.invalid", false, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			d := collectors.Device{ID: tt.target, Host: tt.target}
			r, err := q.Query(context.Background(), d)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			obs := Observations(d, r, time.Now())
			if len(obs) != 1 {
				t.Fatalf("observations = %d, want 1", len(obs))
			}
			f := obs[0].Fields
			if got := f["success"] == 1; got != tt.success {
				t.Errorf("success = %v, want %v", got, tt.success)
			}
			if f["packet_loss"] != tt.loss {
				t.Errorf("packet_loss = %v, want %v", f["packet_loss"], tt.loss)
			}
			if f["rtt_avg"] != tt.avg {
				t.Errorf("rtt_avg = %v, want %v", f["rtt_avg"], tt.avg)
			}
			if obs[0].Tags["target"] != tt.target || obs[0].Tags["type"] != "ping" {
				t.Errorf("tags = %v", obs[0].Tags)
			}
		})
	}
}

func TestQueryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := &Querier{Ping: fakePing(nil)}
	if _, err := q.Query(ctx, collectors.Device{Host: "8.8.8.8"}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestTargets(t *testing.T) {
	if got := Targets(nil); len(got) != 2 || got[0].Host != "8.8.8.8" {
		t.Errorf("default targets = %+v", got)
	}

	got := Targets(map[string]interface{}{"targets": []interface{}{"9.9.9.9", "", 42}})
	if len(got) != 1 || got[0].Host != "9.9.9.9" || got[0].Type != Name {
		t.Errorf("targets = %+v", got)
	}
}
