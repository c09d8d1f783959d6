// config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the main configuration structure
type Config struct {
	Modules       []string                   `yaml:"modules"`
	Monitor       MonitorConfig              `yaml:"monitor"`
	Collectors    map[string]CollectorConfig `yaml:"collectors"`
	Devices       []DeviceConfig             `yaml:"devices"`
	Demo          DemoConfig                 `yaml:"demo"`
	Sink          SinkConfig                 `yaml:"sink"`
	Alerting      AlertingConfig             `yaml:"alerting"`
	Notifications NotificationsConfig        `yaml:"notifications"`
	Logging       LoggingConfig              `yaml:"logging"`
	Status        StatusConfig               `yaml:"status"`
}

// MonitorConfig contains global scheduling settings
type MonitorConfig struct {
	DefaultIntervalSeconds   int `yaml:"default_interval_seconds"`
	ErrorBackoffSeconds      int `yaml:"error_backoff_seconds"`
	CollectTimeoutSeconds    int `yaml:"collect_timeout_seconds"`
	RestartBackoffSeconds    int `yaml:"restart_backoff_seconds"`
	MaxRestartBackoffSeconds int `yaml:"max_restart_backoff_seconds"`
}

// CollectorConfig represents a generic collector configuration
type CollectorConfig struct {
	Enabled  bool                   `yaml:"enabled"`
	Interval int                    `yaml:"interval_seconds,omitempty"`
	Settings map[string]interface{} `yaml:"settings,omitempty"`
}

// DeviceConfig describes one polled network device
type DeviceConfig struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Type           string `yaml:"type"`
	Host           string `yaml:"host"`
	SNMPCommunity  string `yaml:"snmp_community"`
	APIUser        string `yaml:"api_user"`
	APIPassword    string `yaml:"api_password"`
	APIPort        int    `yaml:"api_port"`
	UseTLS         bool   `yaml:"use_tls"`
	ProbePort      int    `yaml:"probe_port"`
	ProbeTimeoutMS int    `yaml:"probe_timeout_ms"`
	DemoMode       bool   `yaml:"demo_mode"`
}

// DemoConfig toggles synthetic data for unreachable devices
type DemoConfig struct {
	Enabled bool `yaml:"enabled"`
}

// SinkConfig holds the metric sink connection parameters
type SinkConfig struct {
	Driver        string `yaml:"driver"`
	Path          string `yaml:"path"`
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	RetentionDays int    `yaml:"retention_days"`
}

// ThresholdConfig holds alert thresholds in percent
type ThresholdConfig struct {
	CPU    float64 `yaml:"cpu"`
	Memory float64 `yaml:"memory"`
	Disk   float64 `yaml:"disk"`
}

// AlertingConfig contains alert engine settings
type AlertingConfig struct {
	Threshold                ThresholdConfig `yaml:"threshold"`
	SuppressionWindowSeconds int             `yaml:"suppression_window_seconds"`
	SuppressionAnchor        string          `yaml:"suppression_anchor"`
	AutoClear                *bool           `yaml:"auto_clear"`
}

// NotificationsConfig contains all notification methods
type NotificationsConfig struct {
	QueueSize     int            `yaml:"queue_size"`
	Workers       int            `yaml:"workers"`
	RatePerSecond float64        `yaml:"rate_per_second"`
	Email         EmailConfig    `yaml:"email"`
	Telegram      TelegramConfig `yaml:"telegram"`
	Kafka         KafkaConfig    `yaml:"kafka"`
}

// EmailConfig contains email notification settings
type EmailConfig struct {
	Enabled    bool     `yaml:"enabled"`
	From       string   `yaml:"from"`
	To         []string `yaml:"to"`
	SMTPServer string   `yaml:"smtp_server"`
	SMTPPort   int      `yaml:"smtp_port"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
}

// TelegramConfig contains telegram bot notification settings
type TelegramConfig struct {
	Enabled  bool    `yaml:"enabled"`
	BotToken string  `yaml:"bot_token"`
	ChatIDs  []int64 `yaml:"chat_ids"`
}

// KafkaConfig contains kafka alert event settings
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// LoggingConfig controls the zap logger
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// StatusConfig controls the status HTTP server
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Defaults applied by validateConfig.
const (
	DefaultIntervalSeconds          = 60
	DefaultErrorBackoffSeconds      = 10
	DefaultCollectTimeoutSeconds    = 30
	DefaultRestartBackoffSeconds    = 1
	DefaultMaxRestartBackoffSeconds = 60
	DefaultProbePort                = 22
	DefaultProbeTimeout             = time.Second
	DefaultSuppressionWindowSeconds = 300
	DefaultKafkaTopic               = "alert_notification"
	DefaultStatusAddr               = "127.0.0.1:9586"

	AnchorLastNotification = "last_notification"
	AnchorFirstSeen        = "first_seen"
)

// LoadConfig loads the configuration from the specified file path. An optional
// .env file next to the working directory is loaded first so ${VAR}
// references in the YAML can pick up secrets.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	return Parse(data)
}

// Parse expands environment references in data and decodes it.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validateConfig performs basic validation on the configuration and fills defaults
func validateConfig(config *Config) error {
	m := &config.Monitor
	if m.DefaultIntervalSeconds < 0 {
		return fmt.Errorf("monitor.default_interval_seconds must be greater than 0")
	}
	if m.DefaultIntervalSeconds == 0 {
		m.DefaultIntervalSeconds = DefaultIntervalSeconds
	}
	if m.ErrorBackoffSeconds <= 0 {
		m.ErrorBackoffSeconds = DefaultErrorBackoffSeconds
	}
	if m.CollectTimeoutSeconds <= 0 {
		m.CollectTimeoutSeconds = DefaultCollectTimeoutSeconds
	}
	if m.RestartBackoffSeconds <= 0 {
		m.RestartBackoffSeconds = DefaultRestartBackoffSeconds
	}
	if m.MaxRestartBackoffSeconds < m.RestartBackoffSeconds {
		m.MaxRestartBackoffSeconds = max(DefaultMaxRestartBackoffSeconds, m.RestartBackoffSeconds)
	}

	if config.Collectors == nil {
		config.Collectors = make(map[string]CollectorConfig)
	}

	// Modules listed at the top level are enabled even without a collectors entry
	for _, name := range config.Modules {
		collector := config.Collectors[name]
		collector.Enabled = true
		config.Collectors[name] = collector
	}

	// Set default intervals for collectors if not specified
	for name, collector := range config.Collectors {
		if collector.Interval < 0 {
			return fmt.Errorf("collectors.%s.interval_seconds must be greater than 0", name)
		}
		if collector.Enabled && collector.Interval == 0 {
			collector.Interval = m.DefaultIntervalSeconds
			config.Collectors[name] = collector
		}
	}

	seen := make(map[string]bool)
	for i := range config.Devices {
		d := &config.Devices[i]
		if d.ID == "" {
			return fmt.Errorf("devices[%d]: id is required", i)
		}
		if seen[d.ID] {
			return fmt.Errorf("devices[%d]: duplicate id %q", i, d.ID)
		}
		seen[d.ID] = true
		if d.Host == "" && !d.DemoMode {
			return fmt.Errorf("device %s: host is required unless demo_mode is set", d.ID)
		}
		if d.Name == "" {
			d.Name = d.ID
		}
		if d.Type == "" {
			d.Type = "mikrotik"
		}
		if d.SNMPCommunity == "" {
			d.SNMPCommunity = "public"
		}
		if d.ProbePort == 0 {
			d.ProbePort = DefaultProbePort
		}
		if d.ProbeTimeoutMS <= 0 {
			d.ProbeTimeoutMS = int(DefaultProbeTimeout / time.Millisecond)
		}
	}

	if err := validateSink(&config.Sink); err != nil {
		return err
	}
	if err := validateAlerting(&config.Alerting); err != nil {
		return err
	}

	// Validate email configuration if enabled
	if config.Notifications.Email.Enabled {
		if config.Notifications.Email.From == "" {
			return fmt.Errorf("email notification enabled but 'from' address is empty")
		}
		if len(config.Notifications.Email.To) == 0 {
			return fmt.Errorf("email notification enabled but 'to' addresses are empty")
		}
		if config.Notifications.Email.SMTPServer == "" {
			return fmt.Errorf("email notification enabled but 'smtp_server' is empty")
		}
		if config.Notifications.Email.SMTPPort <= 0 {
			return fmt.Errorf("email notification enabled but 'smtp_port' is invalid")
		}
	}
	if t := config.Notifications.Telegram; t.Enabled && (t.BotToken == "" || len(t.ChatIDs) == 0) {
		return fmt.Errorf("telegram notification enabled but 'bot_token' or 'chat_ids' is empty")
	}
	if k := &config.Notifications.Kafka; k.Enabled {
		if len(k.Brokers) == 0 {
			return fmt.Errorf("kafka notification enabled but 'brokers' is empty")
		}
		if k.Topic == "" {
			k.Topic = DefaultKafkaTopic
		}
	}

	if config.Status.Addr == "" {
		config.Status.Addr = DefaultStatusAddr
	}

	return nil
}

func validateSink(s *SinkConfig) error {
	switch s.Driver {
	case "", "duckdb":
		s.Driver = "duckdb"
	case "postgres":
		if s.Host == "" {
			return fmt.Errorf("sink.host is required for the postgres driver")
		}
		if s.Port == 0 {
			s.Port = 5432
		}
		if s.Bucket == "" {
			return fmt.Errorf("sink.bucket (database name) is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown sink.driver %q", s.Driver)
	}
	if s.RetentionDays < 0 {
		return fmt.Errorf("sink.retention_days must not be negative")
	}
	return nil
}

func validateAlerting(a *AlertingConfig) error {
	if a.Threshold.CPU == 0 {
		a.Threshold.CPU = 80
	}
	if a.Threshold.Memory == 0 {
		a.Threshold.Memory = 85
	}
	if a.Threshold.Disk == 0 {
		a.Threshold.Disk = 90
	}
	if a.SuppressionWindowSeconds <= 0 {
		a.SuppressionWindowSeconds = DefaultSuppressionWindowSeconds
	}
	switch a.SuppressionAnchor {
	case "":
		a.SuppressionAnchor = AnchorLastNotification
	case AnchorLastNotification, AnchorFirstSeen:
	default:
		return fmt.Errorf("alerting.suppression_anchor must be %q or %q", AnchorLastNotification, AnchorFirstSeen)
	}
	if a.AutoClear == nil {
		enabled := true
		a.AutoClear = &enabled
	}
	return nil
}

// IsEnabled reports whether the named collector should be instantiated
func (c *Config) IsEnabled(collectorName string) bool {
	if slices.Contains(c.Modules, collectorName) {
		return true
	}
	collector, exists := c.Collectors[collectorName]
	return exists && collector.Enabled
}

// GetCollectorInterval returns the interval for a collector in duration
func (c *Config) GetCollectorInterval(collectorName string) time.Duration {
	collector, exists := c.Collectors[collectorName]
	if !exists || !collector.Enabled {
		return 0
	}

	interval := collector.Interval
	if interval <= 0 {
		interval = c.Monitor.DefaultIntervalSeconds
	}

	return time.Duration(interval) * time.Second
}

// CollectorSettings returns the free-form settings of a collector, never nil
func (c *Config) CollectorSettings(collectorName string) map[string]interface{} {
	settings := c.Collectors[collectorName].Settings
	if settings == nil {
		settings = make(map[string]interface{})
	}
	return settings
}

// ErrorBackoff returns the retry delay after a failed cycle
func (m MonitorConfig) ErrorBackoff() time.Duration {
	return time.Duration(m.ErrorBackoffSeconds) * time.Second
}

// CollectTimeout returns the upper bound for a single collect call
func (m MonitorConfig) CollectTimeout() time.Duration {
	return time.Duration(m.CollectTimeoutSeconds) * time.Second
}

// RestartBackoff returns the initial and maximum delay before restarting a dead loop
func (m MonitorConfig) RestartBackoff() (time.Duration, time.Duration) {
	return time.Duration(m.RestartBackoffSeconds) * time.Second,
		time.Duration(m.MaxRestartBackoffSeconds) * time.Second
}

// SuppressionWindow returns the alert re-notification window
func (a AlertingConfig) SuppressionWindow() time.Duration {
	return time.Duration(a.SuppressionWindowSeconds) * time.Second
}

// ProbeTimeout returns the reachability probe timeout for the device
func (d DeviceConfig) ProbeTimeout() time.Duration {
	return time.Duration(d.ProbeTimeoutMS) * time.Millisecond
}
