package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the CrossCast server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Publisher PublisherConfig
	Platforms PlatformsConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// PublisherConfig tunes the publishing scheduler and retry policy.
type PublisherConfig struct {
	MaxAttempts        int
	BackoffBase        time.Duration
	BackoffCap         time.Duration
	WorkersPerPlatform int
	QueueSize          int
	GlobalInFlight     int
	SweepInterval      time.Duration
	StatusCacheTTL     time.Duration
}

// PlatformsConfig holds the upstream endpoint for each platform client.
// Defaults point at the real vendor APIs; tests override with httptest URLs.
type PlatformsConfig struct {
	Timeout   time.Duration
	Facebook  PlatformEndpoint
	Twitter   PlatformEndpoint
	Instagram PlatformEndpoint
	TikTok    PlatformEndpoint
	LinkedIn  PlatformEndpoint
	YouTube   PlatformEndpoint
}

type PlatformEndpoint struct {
	BaseURL string
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("CROSSCAST_PORT", 8080),
			Env:  envString("CROSSCAST_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Publisher: PublisherConfig{
			MaxAttempts:        envInt("PUBLISHER_MAX_ATTEMPTS", 3),
			BackoffBase:        envDuration("PUBLISHER_BACKOFF_BASE", 2*time.Second),
			BackoffCap:         envDuration("PUBLISHER_BACKOFF_CAP", 60*time.Second),
			WorkersPerPlatform: envInt("PUBLISHER_WORKERS_PER_PLATFORM", 2),
			QueueSize:          envInt("PUBLISHER_QUEUE_SIZE", 32),
			GlobalInFlight:     envInt("PUBLISHER_GLOBAL_INFLIGHT", 16),
			SweepInterval:      envDuration("PUBLISHER_SWEEP_INTERVAL", 15*time.Second),
			StatusCacheTTL:     envDuration("PUBLISHER_STATUS_CACHE_TTL", 30*time.Minute),
		},
		Platforms: PlatformsConfig{
			Timeout:   envDuration("PLATFORM_TIMEOUT", 30*time.Second),
			Facebook:  PlatformEndpoint{BaseURL: envString("FACEBOOK_BASE_URL", "https://graph.facebook.com/v19.0")},
			Twitter:   PlatformEndpoint{BaseURL: envString("TWITTER_BASE_URL", "https://api.twitter.com/2")},
			Instagram: PlatformEndpoint{BaseURL: envString("INSTAGRAM_BASE_URL", "https://graph.facebook.com/v19.0")},
			TikTok:    PlatformEndpoint{BaseURL: envString("TIKTOK_BASE_URL", "https://open.tiktokapis.com/v2")},
			LinkedIn:  PlatformEndpoint{BaseURL: envString("LINKEDIN_BASE_URL", "https://api.linkedin.com/v2")},
			YouTube:   PlatformEndpoint{BaseURL: envString("YOUTUBE_BASE_URL", "https://www.googleapis.com/upload/youtube/v3")},
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Publisher.MaxAttempts < 1 {
		return fmt.Errorf("PUBLISHER_MAX_ATTEMPTS must be at least 1, got %d", c.Publisher.MaxAttempts)
	}
	if c.Publisher.WorkersPerPlatform < 1 {
		return fmt.Errorf("PUBLISHER_WORKERS_PER_PLATFORM must be at least 1, got %d", c.Publisher.WorkersPerPlatform)
	}
	if c.Publisher.QueueSize < 1 {
		return fmt.Errorf("PUBLISHER_QUEUE_SIZE must be at least 1, got %d", c.Publisher.QueueSize)
	}
	if c.Publisher.GlobalInFlight < 1 {
		return fmt.Errorf("PUBLISHER_GLOBAL_INFLIGHT must be at least 1, got %d", c.Publisher.GlobalInFlight)
	}
	if c.Publisher.BackoffCap < c.Publisher.BackoffBase {
		return fmt.Errorf("PUBLISHER_BACKOFF_CAP must be >= PUBLISHER_BACKOFF_BASE")
	}

	for name, ep := range map[string]PlatformEndpoint{
		"FACEBOOK_BASE_URL":  c.Platforms.Facebook,
		"TWITTER_BASE_URL":   c.Platforms.Twitter,
		"INSTAGRAM_BASE_URL": c.Platforms.Instagram,
		"TIKTOK_BASE_URL":    c.Platforms.TikTok,
		"LINKEDIN_BASE_URL":  c.Platforms.LinkedIn,
		"YOUTUBE_BASE_URL":   c.Platforms.YouTube,
	} {
		if !strings.HasPrefix(ep.BaseURL, "http://") && !strings.HasPrefix(ep.BaseURL, "https://") {
			return fmt.Errorf("%s must start with http:// or https://, got %q", name, ep.BaseURL)
		}
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
