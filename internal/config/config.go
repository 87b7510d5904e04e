package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dkeye/Chat/internal/core"
)

type RateLimit struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

type Notifications struct {
	Retention     time.Duration `mapstructure:"retention"`
	PruneSchedule string        `mapstructure:"prune_schedule"`
}

type Config struct {
	Mode           string        `mapstructure:"mode"`
	Port           int           `mapstructure:"port"`
	LogLevel       string        `mapstructure:"log_level"`
	Secret         string        `mapstructure:"secret"`
	CORSOrigin     string        `mapstructure:"cors_origin"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	DBPath         string        `mapstructure:"db_path"`
	UploadDir      string        `mapstructure:"upload_dir"`
	UploadMaxBytes int64         `mapstructure:"upload_max_bytes"`
	PublicURL      string        `mapstructure:"public_url"`
	RateLimit      RateLimit     `mapstructure:"rate_limit"`
	Backpressure   string        `mapstructure:"backpressure"`
	Notifications  Notifications `mapstructure:"notifications"`
}

// Loader keeps the viper instance so the file can be watched after Load.
type Loader struct {
	v    *viper.Viper
	file string
}

func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return &Loader{v: v, file: fileName}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "change-me")
	v.SetDefault("cors_origin", "*")
	v.SetDefault("read_limit", 0)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("db_path", "./data/chat.db")
	v.SetDefault("upload_dir", "./data/uploads")
	v.SetDefault("upload_max_bytes", 2<<20)
	v.SetDefault("public_url", "http://localhost:8080")
	v.SetDefault("rate_limit.per_second", 5)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("backpressure", "drop")
	v.SetDefault("notifications.retention", "720h")
	v.SetDefault("notifications.prune_schedule", "@every 1h")
}

func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", l.file).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", l.file).Msg("loaded config")
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch calls fn with the re-read config each time the file changes.
// Invalid edits are logged and skipped.
func (l *Loader) Watch(fn func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			log.Error().Err(err).Str("module", "config").Str("file", e.Name).Msg("reload rejected")
			return
		}
		log.Info().Str("module", "config").Str("file", e.Name).Msg("config reloaded")
		fn(cfg)
	})
	l.v.WatchConfig()
}

func (c *Config) validate() error {
	switch c.Backpressure {
	case "drop", "kick":
	default:
		return fmt.Errorf("backpressure must be drop or kick, got %q", c.Backpressure)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.RateLimit.PerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if c.UploadMaxBytes <= 0 {
		return fmt.Errorf("upload_max_bytes must be positive, got %d", c.UploadMaxBytes)
	}
	// read_limit 0 means sized to carry a full send_message frame.
	budget := core.FrameBudget(c.UploadMaxBytes)
	switch {
	case c.ReadLimit == 0:
		c.ReadLimit = budget
	case c.ReadLimit < budget:
		return fmt.Errorf("read_limit %d cannot carry upload_max_bytes %d, need at least %d", c.ReadLimit, c.UploadMaxBytes, budget)
	}
	return nil
}
