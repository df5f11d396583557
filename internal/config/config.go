package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Backend BackendConfig `mapstructure:"backend"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Draft   DraftConfig   `mapstructure:"draft"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type StorageConfig struct {
	Driver string       `mapstructure:"driver"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type BackendConfig struct {
	URL           string        `mapstructure:"url"`
	APIKey        string        `mapstructure:"api_key"`
	SigningSecret string        `mapstructure:"signing_secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
}

// QueueConfig caps queued entries. Zero values mean unbounded retention:
// entries stay until a replay succeeds or they are manually discarded.
type QueueConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MaxAge      time.Duration `mapstructure:"max_age"`
}

type DraftConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

type MetricsConfig struct {
	SinkURL       string        `mapstructure:"sink_url"`
	SinkTimeout   time.Duration `mapstructure:"sink_timeout"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	Capacity      int           `mapstructure:"capacity"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("disporelay")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/disporelay")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("DISPORELAY")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	viper.SetDefault("storage.driver", "sqlite")
	viper.SetDefault("storage.sqlite.path", "./data/disporelay.db")

	viper.SetDefault("backend.url", "http://localhost:9090")
	viper.SetDefault("backend.timeout", 30*time.Second)
	viper.SetDefault("backend.probe_interval", 30*time.Second)

	viper.SetDefault("retry.max_attempts", 5)
	viper.SetDefault("retry.initial_delay", 1*time.Second)
	viper.SetDefault("retry.max_delay", 30*time.Second)
	viper.SetDefault("retry.multiplier", 2.0)

	viper.SetDefault("queue.max_attempts", 0)
	viper.SetDefault("queue.max_age", time.Duration(0))

	viper.SetDefault("draft.debounce", 500*time.Millisecond)

	viper.SetDefault("metrics.sink_timeout", 10*time.Second)
	viper.SetDefault("metrics.flush_interval", 60*time.Second)
	viper.SetDefault("metrics.capacity", 1000)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}
