// main.go
package main

import (
	"context"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promcollectors "github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"netpoller/alerting"
	"netpoller/collectors"
	"netpoller/collectors/mikrotik"
	"netpoller/collectors/qos"
	"netpoller/collectors/system"
	"netpoller/collectors/wan"
	"netpoller/collectors/wireless"
	"netpoller/config"
	"netpoller/logging"
	"netpoller/monitor"
	"netpoller/notifiers"
	"netpoller/notifiers/email"
	"netpoller/notifiers/kafka"
	"netpoller/notifiers/telegram"
	"netpoller/sink"
	"netpoller/status"
)

const shutdownTimeout = 15 * time.Second

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "netpoller [command]",
		Short:        "network device telemetry poller",
		Long:         `netpoller polls routers, access points and the local host on fixed intervals, stores the samples in a metric sink and raises deduplicated threshold alerts.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to configuration file")
	rootCmd.AddCommand(runCmd(&configPath), validateCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "start polling",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
}

func validateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "check the configuration file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			registry, err := newCollectorRegistry()
			if err != nil {
				return err
			}
			for _, name := range slices.Sorted(maps.Keys(cfg.Collectors)) {
				if cfg.IsEnabled(name) && !registry.Has(name) {
					return fmt.Errorf("collector %q is enabled but unknown", name)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration ok: %d devices, sink %s\n", len(cfg.Devices), cfg.Sink.Driver)
			return nil
		},
	}
}

type collectorFactory struct {
	name    string
	factory collectors.Factory
}

// collectorFactories lists every collector compiled into the binary
var collectorFactories = []collectorFactory{
	{system.Name, system.New},
	{mikrotik.Name, mikrotik.New},
	{wireless.Name, wireless.New},
	{qos.Name, qos.New},
	{wan.Name, wan.New},
}

func newCollectorRegistry() (*collectors.Registry, error) {
	r := collectors.NewRegistry()
	for _, f := range collectorFactories {
		if err := r.Register(f.name, f.factory); err != nil {
			return nil, fmt.Errorf("failed to register collector %s: %w", f.name, err)
		}
	}
	return r, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Initializing netpoller", zap.Strings("modules", cfg.Modules))

	open, err := sink.FromConfig(cfg.Sink)
	if err != nil {
		return err
	}
	client := sink.NewClient(ctx, open, logger)
	defer client.Close()

	retention := sink.NewRetentionCleaner(client, cfg.Sink.RetentionDays, logger)
	defer retention.Stop()

	notifierRegistry, err := buildNotifiers(cfg.Notifications, logger)
	if err != nil {
		return err
	}
	dispatcher := notifiers.NewDispatcher(notifierRegistry, notifiers.DispatcherOptions{
		QueueSize:     cfg.Notifications.QueueSize,
		Workers:       cfg.Notifications.Workers,
		RatePerSecond: cfg.Notifications.RatePerSecond,
	}, logger)
	dispatcher.Start()

	anchor, err := alerting.ParseAnchor(cfg.Alerting.SuppressionAnchor)
	if err != nil {
		return err
	}
	engine := alerting.NewEngine(alerting.NewStore(), client, logger,
		alerting.WithSuppressionWindow(cfg.Alerting.SuppressionWindow()),
		alerting.WithAnchor(anchor),
		alerting.WithPublisher(dispatcher))
	evaluator := alerting.NewEvaluator(engine, cfg.Alerting.Threshold, *cfg.Alerting.AutoClear)

	reg := prometheus.NewRegistry()
	reg.MustRegister(promcollectors.NewGoCollector(), promcollectors.NewProcessCollector(promcollectors.ProcessCollectorOpts{}))
	scheduler := monitor.NewScheduler(logger, append(monitor.FromConfig(cfg.Monitor), monitor.WithMetrics(monitor.NewMetrics(reg)))...)

	if err := registerCollectors(scheduler, cfg, client, evaluator, logger); err != nil {
		return err
	}

	var statusServer *status.Server
	if cfg.Status.Enabled {
		statusServer = status.NewServer(cfg.Status.Addr, scheduler, engine, client, reg, logger)
		if err := statusServer.Start(); err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
	}

	logger.Info("Monitoring service started")
	err = scheduler.Run(ctx)
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if statusServer != nil {
		if serr := statusServer.Stop(shutdownCtx); serr != nil {
			logger.Error("Error stopping status server", zap.Error(serr))
		}
	}
	if derr := dispatcher.Close(shutdownCtx); derr != nil {
		logger.Error("Pending notifications dropped", zap.Error(derr))
	}
	if nerr := notifierRegistry.CloseAll(); nerr != nil {
		logger.Error("Error closing notifiers", zap.Error(nerr))
	}

	logger.Info("Netpoller stopped")
	return err
}

func registerCollectors(s *monitor.Scheduler, cfg *config.Config, client *sink.Client, evaluator *alerting.Evaluator, logger *zap.Logger) error {
	registry, err := newCollectorRegistry()
	if err != nil {
		return err
	}
	devices := collectors.DevicesFromConfig(cfg.Devices)

	registered := 0
	for _, name := range slices.Sorted(maps.Keys(cfg.Collectors)) {
		if !cfg.IsEnabled(name) {
			logger.Info("Collector is disabled, skipping", zap.String("collector", name))
			continue
		}
		if !registry.Has(name) {
			logger.Warn("Collector is enabled but not registered, skipping", zap.String("collector", name))
			continue
		}

		settings := cfg.CollectorSettings(name)
		c, err := registry.Build(name, collectors.Deps{
			Sink:     client,
			Devices:  devices,
			Prober:   collectors.TCPProber{},
			Demo:     cfg.Demo.Enabled,
			Alerts:   evaluator,
			Settings: settings,
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("failed to build collector %s: %w", name, err)
		}

		interval := cfg.GetCollectorInterval(name)
		if err := s.Register(c, interval, settings); err != nil {
			return fmt.Errorf("failed to register collector %s: %w", name, err)
		}
		logger.Info("Collector scheduled", zap.String("collector", name), zap.Duration("interval", interval))
		registered++
	}

	if registered == 0 {
		return fmt.Errorf("no collectors enabled")
	}
	return nil
}

func buildNotifiers(cfg config.NotificationsConfig, logger *zap.Logger) (*notifiers.Registry, error) {
	registry := notifiers.NewRegistry(logger)

	if cfg.Email.Enabled {
		n, err := email.NewEmailNotifier(cfg.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize email notifier: %w", err)
		}
		if err := registry.Register(n); err != nil {
			return nil, err
		}
	}
	if cfg.Telegram.Enabled {
		n, err := telegram.NewTelegramNotifier(cfg.Telegram)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telegram notifier: %w", err)
		}
		if err := registry.Register(n); err != nil {
			return nil, err
		}
	}
	if cfg.Kafka.Enabled {
		n, err := kafka.NewKafkaNotifier(cfg.Kafka)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize kafka notifier: %w", err)
		}
		if err := registry.Register(n); err != nil {
			return nil, err
		}
	}

	if registry.Len() == 0 {
		logger.Warn("No notifiers enabled, alerts are only stored")
	}
	return registry, nil
}
