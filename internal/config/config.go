package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // feed timestamps are local to FEED_TIMEZONE

	"github.com/mr1hm/go-disaster-notify/internal/models"
)

type Config struct {
	Server   ServerConfig
	Worker   WorkerConfig
	Feed     FeedConfig
	Ingest   IngestConfig
	Sweep    SweepConfig
	Dispatch DispatchConfig
	AWS      AWSConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	DB       DatabaseConfig
	Regions  RegionsConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host      string
	Port      int
	RateLimit int // requests per second, global
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type FeedConfig struct {
	URL        string
	ServiceKey string
	PageSize   int
	MaxRecords int
	Timeout    time.Duration
	Timezone   string
}

// Location returns the timezone feed timestamps are expressed in.
func (f FeedConfig) Location() (*time.Location, error) {
	return time.LoadLocation(f.Timezone)
}

type IngestConfig struct {
	Enabled       bool
	Interval      time.Duration
	RecencyWindow time.Duration
}

type SweepConfig struct {
	Interval  time.Duration
	Retention time.Duration
}

type DispatchConfig struct {
	Channel       models.Channel
	RatePerSecond float64
	Burst         int
}

type AWSConfig struct {
	Enabled        bool
	Region         string
	SNSPlatformARN string
	SESSender      string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type AuthConfig struct {
	JWTSecret string
}

type DatabaseConfig struct {
	Path string
}

type RegionsConfig struct {
	CSVPath string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	channel, err := models.ParseChannel(getEnv("DISPATCH_CHANNEL", string(models.ChannelPush)))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:      getEnv("SERVER_HOST", "localhost"),
			Port:      getEnvInt("SERVER_PORT", 8080),
			RateLimit: getEnvInt("SERVER_RATE_LIMIT", 5),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 4),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 100),
		},
		Feed: FeedConfig{
			URL:        getEnv("FEED_URL", "https://www.safetydata.go.kr/V2/api/DSSP-IF-00247"),
			ServiceKey: os.Getenv("DISASTER_API_SERVICE_KEY"),
			PageSize:   getEnvInt("FEED_PAGE_SIZE", 100),
			MaxRecords: getEnvInt("FEED_MAX_RECORDS", 100),
			Timeout:    getEnvDuration("FEED_TIMEOUT", 15*time.Second),
			Timezone:   getEnv("FEED_TIMEZONE", "Asia/Seoul"),
		},
		Ingest: IngestConfig{
			Enabled:       getEnvBool("INGEST_ENABLED", true),
			Interval:      getEnvDuration("INGEST_INTERVAL", time.Hour),
			RecencyWindow: getEnvDuration("INGEST_RECENCY_WINDOW", 10*time.Hour),
		},
		Sweep: SweepConfig{
			Interval:  getEnvDuration("SWEEP_INTERVAL", time.Hour),
			Retention: getEnvDuration("SWEEP_RETENTION", 24*time.Hour),
		},
		Dispatch: DispatchConfig{
			Channel:       channel,
			RatePerSecond: getEnvFloat("DISPATCH_RATE", 20),
			Burst:         getEnvInt("DISPATCH_BURST", 20),
		},
		AWS: AWSConfig{
			Enabled:        getEnvBool("AWS_ENABLED", false),
			Region:         getEnv("AWS_REGION", "ap-northeast-2"),
			SNSPlatformARN: os.Getenv("SNS_PLATFORM_ARN"),
			SESSender:      os.Getenv("SES_SENDER"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "disaster-events"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/disaster-notify.db"),
		},
		Regions: RegionsConfig{
			CSVPath: os.Getenv("REGION_CSV_PATH"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RateLimit < 1 {
		return fmt.Errorf("invalid server rate limit: %d", c.Server.RateLimit)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Worker.Count < 1 || c.Worker.BufferSize < 0 {
		return fmt.Errorf("invalid worker settings: count=%d buffer=%d", c.Worker.Count, c.Worker.BufferSize)
	}

	if c.Ingest.Enabled && c.Feed.ServiceKey == "" {
		return fmt.Errorf("DISASTER_API_SERVICE_KEY is required when ingest is enabled")
	}
	if c.Feed.PageSize < 1 || c.Feed.MaxRecords < 1 {
		return fmt.Errorf("feed page size and max records must be positive")
	}
	if _, err := c.Feed.Location(); err != nil {
		return fmt.Errorf("invalid feed timezone %q: %w", c.Feed.Timezone, err)
	}

	if c.Ingest.Interval < time.Minute {
		return fmt.Errorf("ingest interval must be at least 1 minute")
	}
	if c.Sweep.Interval < time.Minute {
		return fmt.Errorf("sweep interval must be at least 1 minute")
	}
	if c.Sweep.Retention < c.Ingest.RecencyWindow {
		return fmt.Errorf("sweep retention (%s) must not be shorter than the ingest recency window (%s)",
			c.Sweep.Retention, c.Ingest.RecencyWindow)
	}

	if c.Dispatch.RatePerSecond <= 0 || c.Dispatch.Burst < 1 {
		return fmt.Errorf("dispatch rate and burst must be positive")
	}

	if c.AWS.Enabled {
		switch c.Dispatch.Channel {
		case models.ChannelPush:
			if c.AWS.SNSPlatformARN == "" {
				return fmt.Errorf("SNS_PLATFORM_ARN is required for push delivery")
			}
		case models.ChannelEmail:
			if c.AWS.SESSender == "" {
				return fmt.Errorf("SES_SENDER is required for email delivery")
			}
		}
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
