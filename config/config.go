package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	DriverBadger   = "badger"
	DriverPostgres = "postgres"

	envPrefix   = "RELAY"
	defaultPath = "./config/config.yaml"
)

type HTTP struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout" split_words:"true"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" split_words:"true"`
	IdleTimeout     time.Duration `yaml:"idleTimeout" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" split_words:"true"`
}

type GRPC struct {
	Addr string `yaml:"addr"` // пусто: gRPC выключен
}

type Logging struct {
	Env       string `yaml:"env"`     // dev|stage|prod
	Service   string `yaml:"service"` // lofi-relay
	Version   string `yaml:"version"` // v0.1.0
	Backend   string `yaml:"backend"` // std|zap
	Level     string `yaml:"level"`   // debug|info|warn|error
	AddSource bool   `yaml:"addSource" split_words:"true"`
	Debug     bool   `yaml:"debug"`
}

type Storage struct {
	Driver string `yaml:"driver"` // badger|postgres
}

type Postgres struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns" split_words:"true"`
	MinConns          int32         `yaml:"minConns" split_words:"true"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime" split_words:"true"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime" split_words:"true"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod" split_words:"true"`
	ApplicationName   string        `yaml:"applicationName" split_words:"true"`
}

type Badger struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"inMemory" split_words:"true"`
}

type Chat struct {
	MaxMessageLength   int           `yaml:"maxMessageLength" split_words:"true"`
	OutboundQueue      int           `yaml:"outboundQueue" split_words:"true"`
	PingInterval       time.Duration `yaml:"pingInterval" split_words:"true"`
	WriteTimeout       time.Duration `yaml:"writeTimeout" split_words:"true"`
	RequirePersistence bool          `yaml:"requirePersistence" split_words:"true"`
	HistoryLimit       int           `yaml:"historyLimit" split_words:"true"`
	MaxHistoryLimit    int           `yaml:"maxHistoryLimit" split_words:"true"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowedOrigins" split_words:"true"`
}

type Tracing struct {
	Endpoint    string  `yaml:"endpoint"` // пусто: трейсинг выключен
	SampleRatio float64 `yaml:"sampleRatio" split_words:"true"`
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Logging  Logging  `yaml:"logging"`
	Storage  Storage  `yaml:"storage"`
	Postgres Postgres `yaml:"postgres"`
	Badger   Badger   `yaml:"badger"`
	Chat     Chat     `yaml:"chat"`
	CORS     CORS     `yaml:"cors"`
	Tracing  Tracing  `yaml:"tracing"`
}

// LoadConfig: .env (если есть) -> YAML -> RELAY_* из окружения -> дефолты -> валидация.
// Файл по умолчанию необязателен; явно заданный CONFIG_PATH обязан существовать.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	path, explicit := os.LookupEnv("CONFIG_PATH")
	if !explicit || path == "" {
		path = defaultPath
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, err
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// установка дефолтов, если значения не указаны
func (c *Config) setDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8001"
	}
	c.HTTP.ReadTimeout = durationOr(c.HTTP.ReadTimeout, 15*time.Second)
	c.HTTP.WriteTimeout = durationOr(c.HTTP.WriteTimeout, 30*time.Second)
	c.HTTP.IdleTimeout = durationOr(c.HTTP.IdleTimeout, 60*time.Second)
	c.HTTP.ShutdownTimeout = durationOr(c.HTTP.ShutdownTimeout, 10*time.Second)

	if c.Logging.Service == "" {
		c.Logging.Service = "lofi-relay"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverBadger
	}
	if c.Badger.Path == "" && !c.Badger.InMemory {
		c.Badger.Path = "./data/badger"
	}
	if c.Postgres.ApplicationName == "" {
		c.Postgres.ApplicationName = c.Logging.Service
	}

	c.Chat.MaxMessageLength = intOr(c.Chat.MaxMessageLength, 4000)
	c.Chat.OutboundQueue = intOr(c.Chat.OutboundQueue, 64)
	c.Chat.PingInterval = durationOr(c.Chat.PingInterval, 15*time.Second)
	c.Chat.WriteTimeout = durationOr(c.Chat.WriteTimeout, 5*time.Second)
	c.Chat.HistoryLimit = intOr(c.Chat.HistoryLimit, 50)
	c.Chat.MaxHistoryLimit = intOr(c.Chat.MaxHistoryLimit, 100)

	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if c.Tracing.SampleRatio <= 0 {
		c.Tracing.SampleRatio = 1
	}
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverBadger:
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required when storage.driver is postgres")
		}
	default:
		return fmt.Errorf("storage.driver %q: want badger or postgres", c.Storage.Driver)
	}
	if c.Logging.Backend != "std" && c.Logging.Backend != "zap" {
		return fmt.Errorf("logging.backend %q: want std or zap", c.Logging.Backend)
	}
	if c.Chat.HistoryLimit > c.Chat.MaxHistoryLimit {
		return errors.New("chat.historyLimit must not exceed chat.maxHistoryLimit")
	}
	if c.Tracing.SampleRatio > 1 {
		return errors.New("tracing.sampleRatio must be within (0, 1]")
	}
	return nil
}

func durationOr(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}

func intOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
