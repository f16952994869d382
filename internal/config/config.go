package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Catalog  CatalogConfig
	Output   OutputConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

type CatalogConfig struct {
	EntryURL         string
	CategoryURL      string
	MenuSelector     string
	CategorySelector string
}

type OutputConfig struct {
	Path    string
	BaseDir string
}

type ScraperConfig struct {
	WaitTimeout    time.Duration
	PollInterval   time.Duration
	SettleDelay    time.Duration
	LoadMorePause  time.Duration
	RecycleEvery   int
	StarThreshold  int
	FuzzyThreshold float64
	OriginMarker   string
	PaceMin        time.Duration
	PaceMax        time.Duration
}

type BrowserConfig struct {
	Headless             bool
	PageLoadTimeout      time.Duration
	RecycleSettle        time.Duration
	UserAgent            string
	ViewportWidth        int
	ViewportHeight       int
	RecycleDisableImages bool
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	MaxConns int32
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Stream   string
}

type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := &Config{
		Catalog: CatalogConfig{
			EntryURL:         getEnvOrDefault("CATALOG_ENTRY_URL", "https://www.adidas.jp/men"),
			CategoryURL:      getEnvOrDefault("CATALOG_CATEGORY_URL", "https://www.adidas.jp/メンズ-ウェア・服-tシャツ"),
			MenuSelector:     getEnvOrDefault("CATALOG_MENU_SELECTOR", `a[href="/men"]`),
			CategorySelector: getEnvOrDefault("CATALOG_CATEGORY_SELECTOR", `a[href="/メンズ-ウェア・服-tシャツ"]`),
		},
		Output: OutputConfig{
			Path:    getEnvOrDefault("OUTPUT_PATH", "adidas_products.xlsx"),
			BaseDir: getEnvOrDefault("RUN_BASE_DIR", "."),
		},
		Scraper: ScraperConfig{
			WaitTimeout:    getDurationOrDefault("SCRAPER_WAIT_TIMEOUT", 60*time.Second),
			PollInterval:   getDurationOrDefault("SCRAPER_POLL_INTERVAL", 250*time.Millisecond),
			SettleDelay:    getDurationOrDefault("SCRAPER_SETTLE_DELAY", 2*time.Second),
			LoadMorePause:  getDurationOrDefault("SCRAPER_LOAD_MORE_PAUSE", 500*time.Millisecond),
			RecycleEvery:   getIntOrDefault("SCRAPER_RECYCLE_EVERY", 3),
			StarThreshold:  getIntOrDefault("SCRAPER_STAR_FILL_THRESHOLD", 50),
			FuzzyThreshold: getFloatOrDefault("SCRAPER_FUZZY_THRESHOLD", 0.75),
			OriginMarker:   getEnvOrDefault("SCRAPER_ORIGIN_MARKER", "生産国"),
			PaceMin:        getDurationOrDefault("SCRAPER_PACE_MIN", 0),
			PaceMax:        getDurationOrDefault("SCRAPER_PACE_MAX", 0),
		},
		Browser: BrowserConfig{
			Headless:             getBoolOrDefault("BROWSER_HEADLESS", true),
			PageLoadTimeout:      getDurationOrDefault("BROWSER_PAGE_LOAD_TIMEOUT", 180*time.Second),
			RecycleSettle:        getDurationOrDefault("BROWSER_RECYCLE_SETTLE", 5*time.Second),
			UserAgent:            getEnvOrDefault("BROWSER_USER_AGENT", ""),
			ViewportWidth:        getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1296),
			ViewportHeight:       getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 775),
			RecycleDisableImages: getBoolOrDefault("BROWSER_RECYCLE_DISABLE_IMAGES", true),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "catalog"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 4)),
		},
		Redis: RedisConfig{
			Enabled:  getBoolOrDefault("REDIS_ENABLED", false),
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:catalog_products"),
		},
		Server: ServerConfig{
			Addr:            getEnvOrDefault("STATUS_ADDR", ""),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Catalog.EntryURL == "" {
		return fmt.Errorf("CATALOG_ENTRY_URL is required")
	}

	if c.Output.Path == "" {
		return fmt.Errorf("OUTPUT_PATH is required")
	}

	if c.Scraper.RecycleEvery < 1 {
		return fmt.Errorf("SCRAPER_RECYCLE_EVERY must be at least 1")
	}

	if c.Scraper.StarThreshold < 0 || c.Scraper.StarThreshold > 100 {
		return fmt.Errorf("SCRAPER_STAR_FILL_THRESHOLD must be between 0 and 100")
	}

	if c.Scraper.FuzzyThreshold <= 0 || c.Scraper.FuzzyThreshold >= 1 {
		return fmt.Errorf("SCRAPER_FUZZY_THRESHOLD must be between 0 and 1")
	}

	if c.Scraper.WaitTimeout <= 0 || c.Scraper.PollInterval <= 0 {
		return fmt.Errorf("SCRAPER_WAIT_TIMEOUT and SCRAPER_POLL_INTERVAL must be positive")
	}

	if c.Scraper.PaceMin < 0 || c.Scraper.PaceMin > c.Scraper.PaceMax {
		return fmt.Errorf("SCRAPER_PACE_MIN cannot be negative or greater than SCRAPER_PACE_MAX")
	}

	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("invalid viewport: %dx%d", c.Browser.ViewportWidth, c.Browser.ViewportHeight)
	}

	if c.Database.Enabled && (c.Database.Host == "" || c.Database.Name == "") {
		return fmt.Errorf("DB_HOST and DB_NAME are required when DB_ENABLED is set")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required when REDIS_ENABLED is set")
	}

	return nil
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
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

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
