package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/platinummonkey/procvfs/pkg/httputil"
	"github.com/platinummonkey/procvfs/pkg/observability"
	"github.com/platinummonkey/procvfs/pkg/plugins"
)

// EnvPrefix prefixes every environment override, e.g. PROCVFS_LOG_LEVEL
const EnvPrefix = "PROCVFS"

// Config holds all application configuration
type Config struct {
	// PluginDir is scanned for native modules; empty means <exe dir>/plugins
	PluginDir string `yaml:"plugin_dir" mapstructure:"plugin_dir"`
	Pattern   string `yaml:"pattern" mapstructure:"pattern"`

	// Capacity bounds the registry; zero means unbounded
	Capacity int `yaml:"capacity" mapstructure:"capacity"`

	System      plugins.SystemInfo `yaml:"system" mapstructure:"system"`
	RuntimeHost RuntimeHostConfig  `yaml:"runtime_host" mapstructure:"runtime_host"`
	Processes   ProcessConfig      `yaml:"processes" mapstructure:"processes"`

	Server  ServerConfig             `yaml:"server" mapstructure:"server"`
	Log     LogConfig                `yaml:"log" mapstructure:"log"`
	Metrics MetricsConfig            `yaml:"metrics" mapstructure:"metrics"`
	OTel    observability.OTelConfig `yaml:"otel" mapstructure:"otel"`
}

// RuntimeHostConfig configures the scripting runtime host
type RuntimeHostConfig struct {
	Enabled   bool     `yaml:"enabled" mapstructure:"enabled"`
	Dir       string   `yaml:"dir" mapstructure:"dir"`
	Subdir    string   `yaml:"subdir" mapstructure:"subdir"`
	Versions  []string `yaml:"versions" mapstructure:"versions"`
	Secondary string   `yaml:"secondary" mapstructure:"secondary"`
	Host      string   `yaml:"host" mapstructure:"host"`
}

// Plugins converts to the loader's runtime host configuration
func (r RuntimeHostConfig) Plugins() plugins.RuntimeHostConfig {
	return plugins.RuntimeHostConfig{
		Enabled:   r.Enabled,
		Dir:       r.Dir,
		Subdir:    r.Subdir,
		Versions:  append([]string(nil), r.Versions...),
		Secondary: r.Secondary,
		Host:      r.Host,
	}
}

// ProcessConfig configures the host process source
type ProcessConfig struct {
	CacheSize int `yaml:"cache_size" mapstructure:"cache_size"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string        `yaml:"addr" mapstructure:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`

	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// RateLimitConfig limits requests per client host; zero requests disables it
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	Burst             int `yaml:"burst" mapstructure:"burst"`
}

// HTTPUtil converts to the middleware's configuration
func (r RateLimitConfig) HTTPUtil() httputil.RateLimitConfig {
	return httputil.RateLimitConfig{
		RequestsPerWindow: r.RequestsPerMinute,
		WindowDuration:    time.Minute,
		BurstSize:         r.Burst,
	}
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// Defaults returns the configuration used when nothing is set
func Defaults() Config {
	rh := plugins.DefaultRuntimeHostConfig()
	return Config{
		Pattern: plugins.DefaultPattern,
		System: plugins.SystemInfo{
			SystemType:  runtime.GOOS,
			MemoryModel: runtime.GOARCH,
		},
		RuntimeHost: RuntimeHostConfig{
			Enabled:   rh.Enabled,
			Subdir:    rh.Subdir,
			Versions:  rh.Versions,
			Secondary: rh.Secondary,
			Host:      rh.Host,
		},
		Processes: ProcessConfig{CacheSize: 1024},
		Server: ServerConfig{
			Addr:            "127.0.0.1:7070",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 1200,
				Burst:             100,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: observability.FormatText,
		},
		Metrics: MetricsConfig{Enabled: true},
		OTel: observability.OTelConfig{
			Endpoint:       "localhost:4317",
			ServiceName:    "procvfs",
			ServiceVersion: "dev",
			Insecure:       true,
			SampleRatio:    1,
			ExportInterval: 10 * time.Second,
		},
	}
}

// SetDefaults registers every default with v so environment overrides work
// for keys absent from the config file
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("plugin_dir", d.PluginDir)
	v.SetDefault("pattern", d.Pattern)
	v.SetDefault("capacity", d.Capacity)
	v.SetDefault("system.system_type", d.System.SystemType)
	v.SetDefault("system.memory_model", d.System.MemoryModel)
	v.SetDefault("runtime_host.enabled", d.RuntimeHost.Enabled)
	v.SetDefault("runtime_host.dir", d.RuntimeHost.Dir)
	v.SetDefault("runtime_host.subdir", d.RuntimeHost.Subdir)
	v.SetDefault("runtime_host.versions", d.RuntimeHost.Versions)
	v.SetDefault("runtime_host.secondary", d.RuntimeHost.Secondary)
	v.SetDefault("runtime_host.host", d.RuntimeHost.Host)
	v.SetDefault("processes.cache_size", d.Processes.CacheSize)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.rate_limit.requests_per_minute", d.Server.RateLimit.RequestsPerMinute)
	v.SetDefault("server.rate_limit.burst", d.Server.RateLimit.Burst)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("otel.enabled", d.OTel.Enabled)
	v.SetDefault("otel.endpoint", d.OTel.Endpoint)
	v.SetDefault("otel.service_name", d.OTel.ServiceName)
	v.SetDefault("otel.service_version", d.OTel.ServiceVersion)
	v.SetDefault("otel.insecure", d.OTel.Insecure)
	v.SetDefault("otel.sample_ratio", d.OTel.SampleRatio)
	v.SetDefault("otel.export_interval", d.OTel.ExportInterval)
}

// Load reads configuration into v from path (or the default locations when
// path is empty) and the environment. A missing default config file is not
// an error; a missing explicit one is.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("procvfs")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "procvfs"))
		}
		v.AddConfigPath("/etc/procvfs")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Pattern == "" {
		return fmt.Errorf("plugin pattern is required")
	}
	if _, err := filepath.Match(c.Pattern, "m_probe.so"); err != nil {
		return fmt.Errorf("invalid plugin pattern %q: %w", c.Pattern, err)
	}
	if c.Capacity < 0 {
		return fmt.Errorf("capacity must not be negative")
	}

	if c.RuntimeHost.Enabled {
		if len(c.RuntimeHost.Versions) == 0 {
			return fmt.Errorf("runtime host requires at least one interpreter version")
		}
		if c.RuntimeHost.Host == "" {
			return fmt.Errorf("runtime host library name is required")
		}
	}

	if c.Server.RateLimit.RequestsPerMinute < 0 || c.Server.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit values must not be negative")
	}

	if c.Processes.CacheSize <= 0 {
		return fmt.Errorf("process cache size must be positive")
	}

	if c.Log.Level != "" {
		if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
	}

	switch strings.ToLower(c.Log.Format) {
	case "", observability.FormatText, observability.FormatJSON:
	default:
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Log.Format)
	}

	if c.OTel.Enabled {
		if c.OTel.Endpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.OTel.ServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if c.OTel.SampleRatio < 0 || c.OTel.SampleRatio > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1, got %g", c.OTel.SampleRatio)
		}
		if c.OTel.ExportInterval < 0 {
			return fmt.Errorf("OpenTelemetry export interval must not be negative")
		}
	}

	return nil
}
