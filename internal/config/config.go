package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Crawler  CrawlerConfig
	Database DatabaseConfig
	Queue    QueueConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

type CrawlerConfig struct {
	StartURL        string
	AllowedDomain   string
	Delay           time.Duration
	ConcurrentLimit int
	FetchTimeout    time.Duration
	Accept          string
	ForwardedFor    string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type QueueConfig struct {
	Type      string
	RedisAddr string
	RedisKey  string
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Crawler: CrawlerConfig{
			StartURL:        getEnvOrDefault("CRAWLER_START_URL", "https://www.jumia.co.ke/smartphones/"),
			AllowedDomain:   getEnvOrDefault("CRAWLER_ALLOWED_DOMAIN", "jumia.co.ke"),
			Delay:           getDurationOrDefault("CRAWLER_DELAY", 2*time.Second),
			ConcurrentLimit: getIntOrDefault("CRAWLER_CONCURRENT_LIMIT", 1),
			FetchTimeout:    getDurationOrDefault("CRAWLER_FETCH_TIMEOUT", 30*time.Second),
			Accept:          getEnvOrDefault("CRAWLER_ACCEPT", "text/html,application/xhtml+xml"),
			ForwardedFor:    getEnvOrDefault("CRAWLER_FORWARDED_FOR", "41.90.0.1"),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "jumia_data"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
		},
		Queue: QueueConfig{
			Type:      getEnvOrDefault("QUEUE_TYPE", "memory"),
			RedisAddr: getEnvOrDefault("QUEUE_REDIS_ADDR", "localhost:6379"),
			RedisKey:  getEnvOrDefault("QUEUE_REDIS_KEY", "crawler:frontier"),
		},
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Crawler.StartURL == "" {
		return fmt.Errorf("CRAWLER_START_URL must not be empty")
	}

	if c.Crawler.AllowedDomain == "" {
		return fmt.Errorf("CRAWLER_ALLOWED_DOMAIN must not be empty")
	}

	if c.Crawler.ConcurrentLimit < 1 {
		return fmt.Errorf("CRAWLER_CONCURRENT_LIMIT must be at least 1")
	}

	if c.Crawler.Delay < 0 {
		return fmt.Errorf("CRAWLER_DELAY must not be negative")
	}

	if c.Queue.Type != "memory" && c.Queue.Type != "redis" {
		return fmt.Errorf("QUEUE_TYPE must be memory or redis, got %q", c.Queue.Type)
	}

	return nil
}

// Headers returns the default request headers sent with every fetch.
func (c *CrawlerConfig) Headers() map[string]string {
	headers := make(map[string]string)
	if c.Accept != "" {
		headers["Accept"] = c.Accept
	}
	if c.ForwardedFor != "" {
		headers["X-Forwarded-For"] = c.ForwardedFor
	}
	return headers
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
