package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hazardwatch/hazard-tracker/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Event source (EONET).
	EventBaseURL     string
	EventLimit       int
	EventDays        int
	FetchMaxAttempts int
	FetchTimeout     time.Duration
	PollInterval     time.Duration

	// One-shot history backfill before the poll loop starts.
	HistoryEnabled bool
	HistoryLimit   int
	HistoryDays    int
	HistoryTimeout time.Duration

	// Weather source (feature-flagged via FORECAST_API_KEY / FORECAST_ENABLED).
	ForecastBaseURL string
	ForecastAPIKey  string
	ForecastEnabled bool

	// Monitored locations, e.g. "la:34,-118;st:47,-122".
	Locations []domain.Location

	// Postgres connection.
	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	DBSSLMode      string
	DBMaxOpenConns int
	DBMaxIdleConns int
	DBConnMaxLife  time.Duration

	// Read cache.
	CacheTTL time.Duration

	// Optional publisher for newly inserted events.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	// Default KDE bandwidth when a rate query omits one.
	RateBandwidth float64
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := envDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := envDuration("FETCH_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	pollInterval, err := envDuration("POLL_INTERVAL", 2*time.Minute)
	if err != nil {
		return nil, err
	}
	historyTimeout, err := envDuration("HISTORY_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := envDuration("CACHE_TTL", 10*time.Second)
	if err != nil {
		return nil, err
	}
	connMaxLife, err := envDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	locations, err := parseLocations(envOrDefault("MONITOR_LOCATIONS", "la:34,-118;st:47,-122"))
	if err != nil {
		return nil, err
	}

	bandwidth, err := envFloat("RATE_BANDWIDTH", 0.1)
	if err != nil {
		return nil, err
	}

	forecastKey := os.Getenv("FORECAST_API_KEY")
	forecastEnabled := forecastKey != ""
	if v := os.Getenv("FORECAST_ENABLED"); v != "" {
		forecastEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		EventBaseURL:     envOrDefault("EVENT_BASE_URL", "https://eonet.sci.gsfc.nasa.gov/api/v2.1/events"),
		EventLimit:       envInt("EVENT_LIMIT", 1000),
		EventDays:        envInt("EVENT_DAYS", 100),
		FetchMaxAttempts: envInt("FETCH_MAX_ATTEMPTS", 3),
		FetchTimeout:     fetchTimeout,
		PollInterval:     pollInterval,

		HistoryEnabled: os.Getenv("HISTORY_ENABLED") == "true",
		HistoryLimit:   envInt("HISTORY_LIMIT", 1000),
		HistoryDays:    envInt("HISTORY_DAYS", 1000),
		HistoryTimeout: historyTimeout,

		ForecastBaseURL: envOrDefault("FORECAST_BASE_URL", "https://api.darksky.net/forecast"),
		ForecastAPIKey:  forecastKey,
		ForecastEnabled: forecastEnabled,

		Locations: locations,

		DBHost:         envOrDefault("DB_HOST", "localhost"),
		DBPort:         envInt("DB_PORT", 5432),
		DBUser:         envOrDefault("DB_USER", "hazard"),
		DBPassword:     os.Getenv("DB_PASSWORD"),
		DBName:         envOrDefault("DB_NAME", "hazard"),
		DBSSLMode:      envOrDefault("DB_SSLMODE", "disable"),
		DBMaxOpenConns: envInt("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns: envInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLife:  connMaxLife,

		CacheTTL: cacheTTL,

		KafkaEnabled: os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers: parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "hazard-events"),

		RateBandwidth: bandwidth,
	}

	if cfg.FetchMaxAttempts < 1 {
		return nil, errors.New("FETCH_MAX_ATTEMPTS must be at least 1")
	}
	if len(cfg.Locations) == 0 {
		return nil, errors.New("MONITOR_LOCATIONS is required")
	}
	if cfg.ForecastEnabled && cfg.ForecastAPIKey == "" {
		return nil, errors.New("FORECAST_ENABLED is true but FORECAST_API_KEY is not set")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.RateBandwidth <= 0 {
		return nil, errors.New("RATE_BANDWIDTH must be positive")
	}

	return cfg, nil
}

// DSN builds the Postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

// Location returns the monitored location with the given name.
func (c *Config) Location(name string) (domain.Location, bool) {
	for _, loc := range c.Locations {
		if loc.Name == name {
			return loc, true
		}
	}
	return domain.Location{}, false
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parseBrokers(s string) []string {
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}

// parseLocations parses "name:lat,lon" pairs separated by semicolons.
func parseLocations(s string) ([]domain.Location, error) {
	var locations []domain.Location
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, coords, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid MONITOR_LOCATIONS entry %q", part)
		}
		latStr, lonStr, ok := strings.Cut(coords, ",")
		if !ok {
			return nil, fmt.Errorf("invalid MONITOR_LOCATIONS entry %q", part)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude in %q: %w", part, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude in %q: %w", part, err)
		}
		locations = append(locations, domain.Location{
			Name:      strings.TrimSpace(name),
			Latitude:  lat,
			Longitude: lon,
		})
	}
	return locations, nil
}
