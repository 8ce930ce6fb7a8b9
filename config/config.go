// Package config loads the runtime configuration: defaults for every
// tunable, an optional YAML file, and GAMECORE_* environment overrides.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the deployment-tunable surface of the runtime.
type Config struct {
	// Reactor.
	WorkerThreads int  `mapstructure:"worker_threads"`
	MaxSessions   int  `mapstructure:"max_sessions"`
	SendOverflow  int  `mapstructure:"send_overflow"`
	StrictUnknown bool `mapstructure:"strict_unknown_packets"`

	// Logic runtime.
	LogicThreads      int     `mapstructure:"logic_threads"`
	FixedTimeStepMs   int     `mapstructure:"fixed_time_step_ms"`
	TargetFrameTimeMs float64 `mapstructure:"target_frame_time_ms"`

	// Client.
	ReconnectIntervalMs int `mapstructure:"reconnect_interval_ms"`

	// Interest management.
	AOICellSize   float64 `mapstructure:"aoi_cell_size"`
	AOIHysteresis float64 `mapstructure:"aoi_hysteresis"`

	// Idle sweep.
	TimeoutMs      int `mapstructure:"timeout_ms"`
	TimeoutCycleMs int `mapstructure:"timeout_cycle_ms"`

	// Logging.
	LogLevel string `mapstructure:"log_level"`

	v *viper.Viper
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("worker_threads", runtime.NumCPU())
	v.SetDefault("max_sessions", 10000)
	v.SetDefault("send_overflow", 1024)
	v.SetDefault("strict_unknown_packets", false)
	v.SetDefault("logic_threads", 2)
	v.SetDefault("fixed_time_step_ms", 20)
	v.SetDefault("target_frame_time_ms", 16.66)
	v.SetDefault("reconnect_interval_ms", 1000)
	v.SetDefault("aoi_cell_size", 100.0)
	v.SetDefault("aoi_hysteresis", 10.0)
	v.SetDefault("timeout_ms", 60000)
	v.SetDefault("timeout_cycle_ms", 10000)
	v.SetDefault("log_level", "info")
}

// Load reads the configuration. path may be empty, in which case only
// defaults and environment overrides apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("gamecore")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the runtime cannot honor.
func (c *Config) Validate() error {
	if c.WorkerThreads < 1 {
		return fmt.Errorf("config: worker_threads must be >= 1, got %d", c.WorkerThreads)
	}
	if c.LogicThreads < 1 {
		return fmt.Errorf("config: logic_threads must be >= 1, got %d", c.LogicThreads)
	}
	if c.FixedTimeStepMs <= 0 {
		return fmt.Errorf("config: fixed_time_step_ms must be positive, got %d", c.FixedTimeStepMs)
	}
	if c.TargetFrameTimeMs <= 0 {
		return fmt.Errorf("config: target_frame_time_ms must be positive, got %v", c.TargetFrameTimeMs)
	}
	if c.AOICellSize <= 0 {
		return fmt.Errorf("config: aoi_cell_size must be positive, got %v", c.AOICellSize)
	}
	if c.AOIHysteresis < 0 || c.AOIHysteresis >= c.AOICellSize/2 {
		return fmt.Errorf("config: aoi_hysteresis must be in [0, aoi_cell_size/2), got %v",
			c.AOIHysteresis)
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("config: max_sessions must be >= 1, got %d", c.MaxSessions)
	}
	return nil
}

// Watch registers a change callback for the loaded file, if any. The
// running engine does not re-tune itself; onChange is the operator's
// hook (log, schedule restart).
func (c *Config) Watch(onChange func(fsnotify.Event)) {
	if c.v.ConfigFileUsed() == "" {
		return
	}
	c.v.OnConfigChange(onChange)
	c.v.WatchConfig()
}

// FixedStep returns the fixed-update period.
func (c *Config) FixedStep() time.Duration {
	return time.Duration(c.FixedTimeStepMs) * time.Millisecond
}

// FrameBudget returns the target frame time.
func (c *Config) FrameBudget() time.Duration {
	return time.Duration(c.TargetFrameTimeMs * float64(time.Millisecond))
}

// ReconnectInterval returns the client reconnect scan period.
func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.ReconnectIntervalMs) * time.Millisecond
}

// IdleTimeout returns the idle-recv kick threshold. Zero disables it.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}
