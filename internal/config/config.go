// internal/config/config.go
package config

import (
	"fmt"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
)

// Config holds the entire application configuration. Fields are populated by
// viper from defaults, an optional config file, PHAROS_* environment
// variables and bound CLI flags, in that order of precedence.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Network   NetworkConfig   `mapstructure:"network" yaml:"network"`
	Gather    GatherConfig    `mapstructure:"gather" yaml:"gather"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to terminal colors for the console encoder.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser process.
type BrowserConfig struct {
	Headless   bool     `mapstructure:"headless" yaml:"headless"`
	DisableGPU bool     `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	NoSandbox  bool     `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	ChromePath string   `mapstructure:"chrome_path" yaml:"chrome_path"`
	Args       []string `mapstructure:"args" yaml:"args"`
}

// NetworkConfig tunes throttling and request shaping for gathering passes.
type NetworkConfig struct {
	Throttling         schemas.ThrottlingSettings `mapstructure:"throttling" yaml:"throttling"`
	BlockedURLPatterns []string                   `mapstructure:"blocked_url_patterns" yaml:"blocked_url_patterns"`
	ExtraHeaders       map[string]string          `mapstructure:"extra_headers" yaml:"extra_headers"`
}

// GatherConfig controls how the gathering run itself behaves.
type GatherConfig struct {
	FormFactor          string                 `mapstructure:"form_factor" yaml:"form_factor"`
	ScreenEmulation     schemas.ScreenEmulation `mapstructure:"screen_emulation" yaml:"screen_emulation"`
	UserAgent           string                 `mapstructure:"user_agent" yaml:"user_agent"`
	MaxWaitForLoad      time.Duration          `mapstructure:"max_wait_for_load" yaml:"max_wait_for_load"`
	DisableStorageReset bool                   `mapstructure:"disable_storage_reset" yaml:"disable_storage_reset"`
	PacePerSecond       float64                `mapstructure:"pace_per_second" yaml:"pace_per_second"`
	ParallelTargets     int                    `mapstructure:"parallel_targets" yaml:"parallel_targets"`
}

// ArtifactsConfig controls where and how bundles are written.
type ArtifactsConfig struct {
	Dir      string `mapstructure:"dir" yaml:"dir"`
	Compress bool   `mapstructure:"compress" yaml:"compress"`
}

// DatabaseConfig holds the optional run registry connection. An empty URL
// disables persistence entirely.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// Emulated screen presets applied when no explicit screen emulation is
// configured.
const (
	mobileWidth       = 412
	mobileHeight      = 823
	mobileScaleFactor = 1.75

	desktopWidth       = 1350
	desktopHeight      = 940
	desktopScaleFactor = 1.0
)

// NewDefaultConfig returns a configuration populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are under our control; failing to unmarshal them is a bug.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "pharos")
	v.SetDefault("logger.log_file", "pharos.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.no_sandbox", true)

	// -- Network --
	// Throttling defaults approximate a mid-tier mobile connection.
	v.SetDefault("network.throttling.request_latency_ms", 150.0)
	v.SetDefault("network.throttling.download_throughput_kbps", 1638.4)
	v.SetDefault("network.throttling.upload_throughput_kbps", 750.0)
	v.SetDefault("network.throttling.cpu_slowdown_multiplier", 4.0)

	// -- Gather --
	v.SetDefault("gather.form_factor", schemas.FormFactorMobile)
	v.SetDefault("gather.max_wait_for_load", "45s")
	v.SetDefault("gather.disable_storage_reset", false)
	v.SetDefault("gather.pace_per_second", 1.0)
	v.SetDefault("gather.parallel_targets", 2)

	// -- Artifacts --
	v.SetDefault("artifacts.dir", "~/.pharos/artifacts")
	v.SetDefault("artifacts.compress", true)
}

// NewConfigFromViper builds and validates a configuration from a viper
// instance that already has defaults, file and env sources applied.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind sensitive values that should come from the environment.
	v.BindEnv("database.url", "PHAROS_DATABASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be \"console\" or \"json\", got %q", c.Logger.Format)
	}

	switch c.Gather.FormFactor {
	case schemas.FormFactorMobile, schemas.FormFactorDesktop, schemas.FormFactorNone:
	default:
		return fmt.Errorf("gather.form_factor must be mobile, desktop or none, got %q", c.Gather.FormFactor)
	}

	if c.Gather.MaxWaitForLoad <= 0 {
		return fmt.Errorf("gather.max_wait_for_load must be a positive duration")
	}
	if c.Gather.ParallelTargets <= 0 {
		return fmt.Errorf("gather.parallel_targets must be a positive integer")
	}
	if c.Gather.PacePerSecond < 0 {
		return fmt.Errorf("gather.pace_per_second must not be negative")
	}

	t := c.Network.Throttling
	if t.RequestLatencyMs < 0 || t.DownloadThroughputKbps < 0 || t.UploadThroughputKbps < 0 {
		return fmt.Errorf("network.throttling values must not be negative")
	}
	if t.CPUSlowdownMultiplier < 1 {
		return fmt.Errorf("network.throttling.cpu_slowdown_multiplier must be at least 1")
	}

	if c.Artifacts.Dir == "" {
		return fmt.Errorf("artifacts.dir must not be empty")
	}
	return nil
}

// ArtifactsDir returns the artifact directory with a leading ~ expanded to
// the user's home directory.
func (c *Config) ArtifactsDir() (string, error) {
	dir, err := homedir.Expand(c.Artifacts.Dir)
	if err != nil {
		return "", fmt.Errorf("expanding artifacts.dir: %w", err)
	}
	return dir, nil
}

// GatherSettings translates the configuration into the run settings handed
// to the gather runner. Screen emulation falls back to a per-form-factor
// preset when not explicitly configured.
func (c *Config) GatherSettings() *schemas.Settings {
	s := &schemas.Settings{
		EmulatedFormFactor:  c.Gather.FormFactor,
		UserAgent:           c.Gather.UserAgent,
		Throttling:          c.Network.Throttling,
		BlockedURLPatterns:  c.Network.BlockedURLPatterns,
		ExtraHeaders:        c.Network.ExtraHeaders,
		DisableStorageReset: c.Gather.DisableStorageReset,
		MaxWaitForLoad:      c.Gather.MaxWaitForLoad,
	}

	se := c.Gather.ScreenEmulation
	if se.Disabled {
		return s
	}
	if se.Width == 0 || se.Height == 0 {
		switch c.Gather.FormFactor {
		case schemas.FormFactorMobile:
			se = schemas.ScreenEmulation{
				Width:             mobileWidth,
				Height:            mobileHeight,
				DeviceScaleFactor: mobileScaleFactor,
				Mobile:            true,
			}
		case schemas.FormFactorDesktop:
			se = schemas.ScreenEmulation{
				Width:             desktopWidth,
				Height:            desktopHeight,
				DeviceScaleFactor: desktopScaleFactor,
				Mobile:            false,
			}
		default:
			return s
		}
	}
	s.ScreenEmulation = &se
	return s
}
