package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	API       APIConfig       `yaml:"api"`
	Store     StoreConfig     `yaml:"store"`
	Inventory InventoryConfig `yaml:"inventory"`
	Session   SessionConfig   `yaml:"session"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Log       LogConfig       `yaml:"log"`
}

type HTTPConfig struct {
	Port               string        `yaml:"port"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBodySize int64         `yaml:"max_request_body_size"`
}

type APIConfig struct {
	BaseURL         string        `yaml:"base_url"`
	StorageURL      string        `yaml:"storage_url"`
	Timeout         time.Duration `yaml:"timeout"`
	RateLimit       float64       `yaml:"rate_limit"`
	RateBurst       int           `yaml:"rate_burst"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
}

type StoreConfig struct {
	Driver        string `yaml:"driver"`
	Path          string `yaml:"path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

type InventoryConfig struct {
	PerPage  int `yaml:"per_page"`
	MaxPages int `yaml:"max_pages"`
}

// SessionConfig bounds how long an unused session stays in memory. Its
// stored state is kept after eviction.
type SessionConfig struct {
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

const (
	DriverMemory = "memory"
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMongo  = "mongo"
)

func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:               "8080",
			RequestTimeout:     30 * time.Second,
			ShutdownTimeout:    10 * time.Second,
			MaxRequestBodySize: 12 << 20, // attachment limit plus form overhead
		},
		API: APIConfig{
			BaseURL:         "https://api.humblegroupusa.com/api",
			StorageURL:      "http://localhost:8000/storage",
			Timeout:         15 * time.Second,
			RateLimit:       20,
			RateBurst:       10,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Store: StoreConfig{
			Driver:        DriverBadger,
			Path:          "./data/storefront",
			RedisAddr:     "localhost:6379",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "storefront",
		},
		Inventory: InventoryConfig{
			PerPage:  100,
			MaxPages: 10,
		},
		Session: SessionConfig{
			IdleTimeout:   30 * time.Minute,
			SweepInterval: time.Minute,
		},
		Kafka: KafkaConfig{
			Topic: "storefront-orders",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads defaults, then the YAML file at path (if path is not empty), then
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.HTTP.Port = getEnv("STOREFRONT_HTTP_PORT", c.HTTP.Port)
	c.API.BaseURL = getEnv("STOREFRONT_API_URL", c.API.BaseURL)
	c.API.StorageURL = getEnv("STOREFRONT_STORAGE_URL", c.API.StorageURL)
	c.Store.Driver = getEnv("STOREFRONT_STORE_DRIVER", c.Store.Driver)
	c.Store.Path = getEnv("STOREFRONT_STORE_PATH", c.Store.Path)
	c.Store.RedisAddr = getEnv("REDIS_ADDR", c.Store.RedisAddr)
	c.Store.RedisPassword = getEnv("REDIS_PASSWORD", c.Store.RedisPassword)
	c.Store.MongoURI = getEnv("MONGO_URI", c.Store.MongoURI)
	c.Store.MongoDatabase = getEnv("MONGO_DB_NAME", c.Store.MongoDatabase)
	c.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Kafka.Topic)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
	}

	var err error
	if c.API.Timeout, err = getEnvDuration("STOREFRONT_API_TIMEOUT", c.API.Timeout); err != nil {
		return err
	}
	if c.HTTP.RequestTimeout, err = getEnvDuration("STOREFRONT_REQUEST_TIMEOUT", c.HTTP.RequestTimeout); err != nil {
		return err
	}
	if c.Session.IdleTimeout, err = getEnvDuration("STOREFRONT_SESSION_IDLE_TIMEOUT", c.Session.IdleTimeout); err != nil {
		return err
	}
	if v := getEnv("STOREFRONT_LOG_DEV", ""); v != "" {
		dev, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: STOREFRONT_LOG_DEV: %v", ErrInvalidConfig, err)
		}
		c.Log.Development = dev
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverBadger, DriverSQLite, DriverRedis, DriverMongo:
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalidConfig, c.Store.Driver)
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("%w: api base_url is required", ErrInvalidConfig)
	}
	if c.API.Timeout <= 0 || c.HTTP.RequestTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	if c.Session.IdleTimeout <= 0 || c.Session.SweepInterval <= 0 {
		return fmt.Errorf("%w: session idle timeout and sweep interval must be positive", ErrInvalidConfig)
	}
	if c.Inventory.PerPage <= 0 || c.Inventory.MaxPages <= 0 {
		return fmt.Errorf("%w: inventory paging must be positive", ErrInvalidConfig)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
