package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/dchest/uniuri"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	envPrefix = "AIRMAC"

	DefaultSignalingURL = "ws://localhost:8080"
	DefaultMinInterval  = 20 * time.Millisecond
	DefaultFinalHold    = time.Second
)

// Config holds all runtime configuration of the controller.
type Config struct {
	SignalingURL string    `mapstructure:"signaling"`
	ControllerID string    `mapstructure:"id"`
	HostID       string    `mapstructure:"host"`
	ICEServers   []string  `mapstructure:"ice_servers"`
	LogLevel     string    `mapstructure:"log_level"`
	Recording    Recording `mapstructure:"recording"`
}

// Recording holds the session recording options.
type Recording struct {
	Dir         string        `mapstructure:"dir"`
	MinInterval time.Duration `mapstructure:"min_interval"`
	MaxWidth    int           `mapstructure:"max_width"`
	Dither      bool          `mapstructure:"dither"`
	FinalHold   time.Duration `mapstructure:"final_hold"`
	Autostart   bool          `mapstructure:"autostart"`
}

// DefaultRecordingDir is where recordings go unless configured otherwise.
func DefaultRecordingDir() string {
	return filepath.Join(xdg.UserDirs.Pictures, "AirMac")
}

// New returns a viper instance with defaults and AIRMAC_* environment
// bindings. Nested keys map to env names with "_" in place of ".", e.g.
// AIRMAC_RECORDING_MIN_INTERVAL.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("signaling", DefaultSignalingURL)
	v.SetDefault("id", "")
	v.SetDefault("host", "")
	v.SetDefault("ice_servers", []string{})
	v.SetDefault("log_level", "info")

	v.SetDefault("recording.dir", DefaultRecordingDir())
	v.SetDefault("recording.min_interval", DefaultMinInterval)
	v.SetDefault("recording.max_width", 0)
	v.SetDefault("recording.dither", true)
	v.SetDefault("recording.final_hold", DefaultFinalHold)
	v.SetDefault("recording.autostart", false)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile loads a config file into v. With an empty path, config.yaml is
// searched in ".", "$HOME/.airmac" and "/etc/airmac"; a missing file is not
// an error in that case.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		return errors.Wrapf(v.ReadInConfig(), "read config %s", path)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range []string{".", "$HOME/.airmac", "/etc/airmac"} {
		v.AddConfigPath(os.ExpandEnv(p))
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return errors.Wrap(err, "read config")
	}
	return nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fills generated values and clamps out-of-range ones. A missing
// host ID is the only hard error.
func (c *Config) Validate() error {
	if c.HostID == "" {
		return errors.New("host ID is required")
	}
	if c.SignalingURL == "" {
		c.SignalingURL = DefaultSignalingURL
	}
	if c.ControllerID == "" {
		c.ControllerID = "controller-" + strings.ToLower(uniuri.NewLen(8))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		c.LogLevel = "info"
	}

	r := &c.Recording
	if r.Dir == "" {
		r.Dir = DefaultRecordingDir()
	}
	if r.MinInterval <= 0 {
		r.MinInterval = DefaultMinInterval
	}
	if r.MaxWidth < 0 {
		r.MaxWidth = 0
	}
	if r.FinalHold <= 0 {
		r.FinalHold = DefaultFinalHold
	}
	return nil
}

// Watch reloads the configuration whenever the config file changes and
// passes each valid result to fn. Invalid reloads are logged and skipped.
func Watch(v *viper.Viper, log logrus.FieldLogger, fn func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := Load(v)
		if err != nil {
			log.WithError(err).WithField("file", e.Name).Warn("ignoring config change")
			return
		}
		log.WithField("file", e.Name).Info("config reloaded")
		fn(cfg)
	})
	v.WatchConfig()
}
