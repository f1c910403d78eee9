package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-sentinel/internal/utils"
)

// Config captures the settings required to boot the sentinel.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Clients   ClientsConfig   `yaml:"clients"`
	Notifiers NotifiersConfig `yaml:"notifiers"`
	Cache     CacheConfig     `yaml:"cache"`
	Services  []ServiceConfig `yaml:"services"`
}

// ServerConfig controls the HTTP listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MonitorConfig controls the evaluation loop.
type MonitorConfig struct {
	Interval          time.Duration `yaml:"interval"`
	CheckTimeout      time.Duration `yaml:"checkTimeout"`
	MaxConcurrent     int           `yaml:"maxConcurrent"`
	AnomalyThreshold  float64       `yaml:"anomalyThreshold"`
	ResolvedRetention int           `yaml:"resolvedRetention"`
}

// ClientsConfig groups external backend integrations.
type ClientsConfig struct {
	Prometheus PrometheusConfig `yaml:"prometheus"`
}

// PrometheusConfig configures access to the metrics backend.
type PrometheusConfig struct {
	BaseURL   string        `yaml:"baseURL"`
	QueryPath string        `yaml:"queryPath"`
	Timeout   time.Duration `yaml:"timeout"`
}

// NotifiersConfig groups the outbound notification sinks.
type NotifiersConfig struct {
	PagerDuty PagerDutyConfig `yaml:"pagerduty"`
	Slack     SlackConfig     `yaml:"slack"`
}

// PagerDutyConfig configures the paging sink.
type PagerDutyConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Endpoint   string        `yaml:"endpoint"`
	RoutingKey string        `yaml:"routingKey"`
	Timeout    time.Duration `yaml:"timeout"`
}

// SlackConfig configures the chat sink.
type SlackConfig struct {
	Enabled    bool          `yaml:"enabled"`
	WebhookURL string        `yaml:"webhookURL"`
	Timeout    time.Duration `yaml:"timeout"`
}

// CacheConfig controls Valkey-backed caching of baseline queries.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	BaselineTTL  time.Duration `yaml:"baselineTTL"`
}

// ServiceConfig is the immutable per-service monitoring input.
type ServiceConfig struct {
	Name      string    `yaml:"name"`
	HealthURL string    `yaml:"healthURL"`
	SLO       SLOConfig `yaml:"slo"`
}

// SLOConfig holds the target thresholds a service is expected to meet.
type SLOConfig struct {
	Availability float64 `yaml:"availability"`
	LatencyP95Ms float64 `yaml:"latencyP95Ms"`
	LatencyP99Ms float64 `yaml:"latencyP99Ms"`
	ErrorRate    float64 `yaml:"errorRate"`
}

// Load initialises Config from a YAML file and optional environment
// overrides, then validates it. Validation failures are fatal at startup.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("SENTINEL_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Monitor: MonitorConfig{
			Interval:          60 * time.Second,
			CheckTimeout:      5 * time.Second,
			MaxConcurrent:     4,
			AnomalyThreshold:  2.0,
			ResolvedRetention: 200,
		},
		Clients: ClientsConfig{
			Prometheus: PrometheusConfig{
				QueryPath: "/api/v1/query",
				Timeout:   5 * time.Second,
			},
		},
		Notifiers: NotifiersConfig{
			PagerDuty: PagerDutyConfig{
				Endpoint: "https://events.pagerduty.com/v2/enqueue",
				Timeout:  5 * time.Second,
			},
			Slack: SlackConfig{Timeout: 5 * time.Second},
		},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			BaselineTTL:  5 * time.Minute,
		},
	}
}

// Validate checks invariants that must hold before the loop starts.
func (c *Config) Validate() error {
	if c.Monitor.Interval <= 0 {
		return utils.NewAppError("config.validate", "monitor interval must be positive", nil)
	}
	if c.Monitor.CheckTimeout <= 0 {
		return utils.NewAppError("config.validate", "check timeout must be positive", nil)
	}
	if c.Monitor.AnomalyThreshold <= 1 {
		return utils.NewAppError("config.validate", "anomaly threshold must exceed 1", nil)
	}
	if c.Notifiers.PagerDuty.Enabled && c.Notifiers.PagerDuty.RoutingKey == "" {
		return utils.NewAppError("config.validate", "pagerduty sink enabled without routing key", nil)
	}
	if c.Notifiers.Slack.Enabled && c.Notifiers.Slack.WebhookURL == "" {
		return utils.NewAppError("config.validate", "slack sink enabled without webhook URL", nil)
	}

	seen := make(map[string]struct{}, len(c.Services))
	for _, svc := range c.Services {
		if svc.Name == "" {
			return utils.NewAppError("config.validate", "service name is required", nil)
		}
		if _, dup := seen[svc.Name]; dup {
			return utils.NewAppError("config.validate", fmt.Sprintf("duplicate service name %q", svc.Name), nil)
		}
		seen[svc.Name] = struct{}{}

		if svc.HealthURL == "" {
			return utils.NewAppError("config.validate", fmt.Sprintf("service %q: health URL is required", svc.Name), nil)
		}
		if svc.SLO.Availability <= 0 || svc.SLO.Availability > 1 {
			return utils.NewAppError("config.validate", fmt.Sprintf("service %q: availability target must be in (0,1]", svc.Name), nil)
		}
		if svc.SLO.ErrorRate <= 0 || svc.SLO.ErrorRate >= 1 {
			return utils.NewAppError("config.validate", fmt.Sprintf("service %q: error rate ceiling must be in (0,1)", svc.Name), nil)
		}
		if svc.SLO.LatencyP95Ms <= 0 {
			return utils.NewAppError("config.validate", fmt.Sprintf("service %q: p95 latency ceiling must be positive", svc.Name), nil)
		}
		if svc.SLO.LatencyP99Ms < svc.SLO.LatencyP95Ms {
			return utils.NewAppError("config.validate", fmt.Sprintf("service %q: p99 ceiling must be >= p95 ceiling", svc.Name), nil)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SENTINEL_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("SENTINEL_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("SENTINEL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SENTINEL_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("SENTINEL_PROMETHEUS_URL"); v != "" {
		cfg.Clients.Prometheus.BaseURL = v
	}
	if v := os.Getenv("SENTINEL_PROMETHEUS_QUERY_PATH"); v != "" {
		cfg.Clients.Prometheus.QueryPath = v
	}
	if v := os.Getenv("SENTINEL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.Interval = d
		}
	}
	if v := os.Getenv("SENTINEL_CHECK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.CheckTimeout = d
		}
	}
	if v := os.Getenv("SENTINEL_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Monitor.MaxConcurrent = n
		}
	}
	if v := os.Getenv("SENTINEL_ANOMALY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Monitor.AnomalyThreshold = f
		}
	}
	if v := os.Getenv("SENTINEL_PAGERDUTY_ROUTING_KEY"); v != "" {
		cfg.Notifiers.PagerDuty.RoutingKey = v
		cfg.Notifiers.PagerDuty.Enabled = true
	}
	if v := os.Getenv("SENTINEL_PAGERDUTY_ENDPOINT"); v != "" {
		cfg.Notifiers.PagerDuty.Endpoint = v
	}
	if v := os.Getenv("SENTINEL_SLACK_WEBHOOK_URL"); v != "" {
		cfg.Notifiers.Slack.WebhookURL = v
		cfg.Notifiers.Slack.Enabled = true
	}
	if v := os.Getenv("SENTINEL_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("SENTINEL_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("SENTINEL_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("SENTINEL_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("SENTINEL_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("SENTINEL_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("SENTINEL_CACHE_BASELINE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.BaselineTTL = d
		}
	}
}
