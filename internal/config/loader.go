package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/jvconnected/camera-engine/internal/logging"
)

// Loader loads the config document using viper, with environment variable
// overrides and defaults, and validates the result before handing it back.
type Loader struct {
	viper  *viper.Viper
	logger *logging.Logger
}

// NewLoader builds a Loader with the CAMERA_ENGINE env prefix bound.
func NewLoader(logger *logging.Logger) *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CAMERA_ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{viper: v, logger: logger}
}

// Load reads configPath, applies defaults for anything unset, unmarshals
// into a Config, and validates it. A missing file is not an error; the
// caller gets an all-defaults document (spec.md §6: "CLI surface... exits
// non-zero on fatal bind error or unreadable config" — a missing file is
// not unreadable, an existing-but-corrupt one is).
func (l *Loader) Load(configPath string) (*Config, error) {
	l.viper.SetConfigFile(configPath)
	l.setDefaults()

	if err := l.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			l.logger.Info("config file not found, starting from defaults")
		} else if os.IsNotExist(err) {
			l.logger.Info("config file not found, starting from defaults")
		} else {
			return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := l.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.Devices == nil {
		cfg.Devices = make(map[string]DeviceConfig)
	}
	if cfg.TallyMaps == nil {
		cfg.TallyMaps = make(map[int]TallyMap)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}
	return &cfg, nil
}

func (l *Loader) setDefaults() {
	l.viper.SetDefault("umd.host", "0.0.0.0")
	l.viper.SetDefault("umd.port", 65000)
	l.viper.SetDefault("umd.max_tally", 32)

	l.viper.SetDefault("command_port.host", "0.0.0.0")
	l.viper.SetDefault("command_port.port", 65001)

	l.viper.SetDefault("midi.port_name", "")

	l.viper.SetDefault("api.host", "0.0.0.0")
	l.viper.SetDefault("api.port", 8765)
	l.viper.SetDefault("api.rate_limit_rps", 20)

	l.viper.SetDefault("discovery.service_type", "_jvc-cc._tcp")
	l.viper.SetDefault("discovery.domain", "local.")

	l.viper.SetDefault("logging.level", "info")
	l.viper.SetDefault("logging.format", "text")
	l.viper.SetDefault("logging.file_enabled", false)
	l.viper.SetDefault("logging.file_path", "/var/log/camera-engine/engine.log")
	l.viper.SetDefault("logging.max_file_size", 10485760)
	l.viper.SetDefault("logging.backup_count", 5)
	l.viper.SetDefault("logging.console_enabled", true)

	l.viper.SetDefault("health.host", "0.0.0.0")
	l.viper.SetDefault("health.port", 9090)
}
