// Package config manages pylaunch tool settings
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. PYLAUNCH_DEBUGGER_HOST
const EnvPrefix = "PYLAUNCH"

// Config holds the pylaunch settings
type Config struct {
	LaunchFile string          `mapstructure:"launch_file"`
	Telemetry  TelemetryConfig `mapstructure:"telemetry"`
	Debugger   DebuggerConfig  `mapstructure:"debugger"`
	Metrics    MetricsConfig   `mapstructure:"metrics"`
	Watch      WatchConfig     `mapstructure:"watch"`
}

// TelemetryConfig controls the local launch history
type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

// DebuggerConfig controls debug launches
type DebuggerConfig struct {
	Adapter       string        `mapstructure:"adapter"`
	Host          string        `mapstructure:"host"`
	WaitForClient bool          `mapstructure:"wait_for_client"`
	AdapterLog    bool          `mapstructure:"adapter_log"`
	CheckAdapter  bool          `mapstructure:"check_adapter"`
	GracePeriod   time.Duration `mapstructure:"grace_period"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// WatchConfig controls the file watcher
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// BindFunc binds extra sources, such as command flags, before unmarshalling
type BindFunc func(v *viper.Viper) error

// Load reads settings from configFile, or from config.yaml in ~/.pylaunch or
// the working directory when configFile is empty. A missing default file is
// not an error.
func Load(configFile string, bind BindFunc) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(Dir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if bind != nil {
		if err := bind(v); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("launch_file", "launch.yaml")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.db_path", filepath.Join(Dir(), "history.db"))
	v.SetDefault("debugger.adapter", "debugpy")
	v.SetDefault("debugger.host", "127.0.0.1")
	v.SetDefault("debugger.wait_for_client", false)
	v.SetDefault("debugger.adapter_log", false)
	v.SetDefault("debugger.check_adapter", true)
	v.SetDefault("debugger.grace_period", "10s")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("watch.debounce", "500ms")
}

// Dir is the per-user settings directory, ~/.pylaunch
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".pylaunch")
}
