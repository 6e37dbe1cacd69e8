package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Upstream UpstreamConfig
	Browser  BrowserConfig
	Catalog  CatalogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Schedule ScheduleConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type ScraperConfig struct {
	Workers           int
	RequestTimeout    time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	RetryDelayMax     time.Duration
	RequestsPerSecond float64
	Burst             int
}

// UpstreamConfig describes the storefront and how to reach it. The proxy is
// shared by the browser session and the detail API client.
type UpstreamConfig struct {
	APIBaseURL     string
	StorefrontURL  string
	UserAgent      string
	AcceptLanguage string
	ProxyURL       string
}

type BrowserConfig struct {
	Headless         bool
	Timeout          time.Duration
	ViewportWidth    int
	ViewportHeight   int
	Locale           string
	TimezoneID       string
	SettleDelay      time.Duration
	ExpandTimeout    time.Duration
	CardsTimeout     time.Duration
	ExhaustionChecks int
	RecheckDelay     time.Duration
	MaxExpansions    int
}

type CatalogConfig struct {
	Categories       []Category
	DataDir          string
	FilePrefix       string
	CategoryDelayMin time.Duration
	CategoryDelayMax time.Duration
}

// Category is one storefront category page. Order in CatalogConfig.Categories
// is the processing order.
type Category struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Enabled      bool
	Addr         string
	Password     string
	DB           int
	PollInterval time.Duration
	BatchSize    int
}

type ScheduleConfig struct {
	Interval time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment. A .env file in the working
// directory, or the files passed in, is loaded first when present.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	categories, err := getCategoriesOrDefault("CATALOG_CATEGORIES", DefaultCategories())
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getIntOrDefault("SERVER_PORT", 8080),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Scraper: ScraperConfig{
			Workers:           getIntOrDefault("SCRAPER_WORKERS", 8),
			RequestTimeout:    getDurationOrDefault("SCRAPER_REQUEST_TIMEOUT", 5*time.Second),
			MaxRetries:        getIntOrDefault("SCRAPER_MAX_RETRIES", 0),
			RetryDelay:        getDurationOrDefault("SCRAPER_RETRY_DELAY", 500*time.Millisecond),
			RetryDelayMax:     getDurationOrDefault("SCRAPER_RETRY_DELAY_MAX", 5*time.Second),
			RequestsPerSecond: getFloatOrDefault("SCRAPER_REQUESTS_PER_SECOND", 0),
			Burst:             getIntOrDefault("SCRAPER_BURST", 8),
		},
		Upstream: UpstreamConfig{
			APIBaseURL:     getEnvOrDefault("UPSTREAM_API_BASE_URL", "https://www.surtiapp.com.co"),
			StorefrontURL:  getEnvOrDefault("UPSTREAM_STOREFRONT_URL", "https://www.surtiapp.com.co"),
			UserAgent:      getEnvOrDefault("UPSTREAM_USER_AGENT", defaultUserAgent),
			AcceptLanguage: getEnvOrDefault("UPSTREAM_ACCEPT_LANGUAGE", "en-US,en;q=0.9,es;q=0.8"),
			ProxyURL:       getEnvOrDefault("UPSTREAM_PROXY_URL", ""),
		},
		Browser: BrowserConfig{
			Headless:         getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:          getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:    getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight:   getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			Locale:           getEnvOrDefault("BROWSER_LOCALE", "es-CO"),
			TimezoneID:       getEnvOrDefault("BROWSER_TIMEZONE", "America/Bogota"),
			SettleDelay:      getDurationOrDefault("BROWSER_SETTLE_DELAY", 2*time.Second),
			ExpandTimeout:    getDurationOrDefault("BROWSER_EXPAND_TIMEOUT", 10*time.Second),
			CardsTimeout:     getDurationOrDefault("BROWSER_CARDS_TIMEOUT", 10*time.Second),
			ExhaustionChecks: getIntOrDefault("BROWSER_EXHAUSTION_CHECKS", 2),
			RecheckDelay:     getDurationOrDefault("BROWSER_RECHECK_DELAY", 2*time.Second),
			MaxExpansions:    getIntOrDefault("BROWSER_MAX_EXPANSIONS", 500),
		},
		Catalog: CatalogConfig{
			Categories:       categories,
			DataDir:          getEnvOrDefault("CATALOG_DATA_DIR", "data"),
			FilePrefix:       getEnvOrDefault("CATALOG_FILE_PREFIX", "surtiapp_dataset_"),
			CategoryDelayMin: getDurationOrDefault("CATALOG_CATEGORY_DELAY_MIN", 0),
			CategoryDelayMax: getDurationOrDefault("CATALOG_CATEGORY_DELAY_MAX", 0),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "surtiapp"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Enabled:      getBoolOrDefault("REDIS_ENABLED", false),
			Addr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:     getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:           getIntOrDefault("REDIS_DB", 0),
			PollInterval: getDurationOrDefault("REDIS_RELAY_INTERVAL", 5*time.Second),
			BatchSize:    getIntOrDefault("REDIS_RELAY_BATCH_SIZE", 100),
		},
		Schedule: ScheduleConfig{
			Interval: getDurationOrDefault("SCHEDULE_INTERVAL", 0),
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
	if c.Scraper.Workers < 1 {
		return fmt.Errorf("SCRAPER_WORKERS must be at least 1")
	}

	if c.Scraper.RequestTimeout <= 0 {
		return fmt.Errorf("SCRAPER_REQUEST_TIMEOUT must be positive")
	}

	if c.Scraper.MaxRetries < 0 {
		return fmt.Errorf("SCRAPER_MAX_RETRIES cannot be negative")
	}

	if c.Scraper.RetryDelayMax > 0 && c.Scraper.RetryDelay > c.Scraper.RetryDelayMax {
		return fmt.Errorf("SCRAPER_RETRY_DELAY cannot be greater than SCRAPER_RETRY_DELAY_MAX")
	}

	if c.Scraper.RequestsPerSecond < 0 {
		return fmt.Errorf("SCRAPER_REQUESTS_PER_SECOND cannot be negative")
	}

	if err := validateURL("UPSTREAM_API_BASE_URL", c.Upstream.APIBaseURL); err != nil {
		return err
	}

	if err := validateURL("UPSTREAM_STOREFRONT_URL", c.Upstream.StorefrontURL); err != nil {
		return err
	}

	if c.Upstream.ProxyURL != "" {
		if err := validateURL("UPSTREAM_PROXY_URL", c.Upstream.ProxyURL); err != nil {
			return err
		}
	}

	if c.Browser.ExhaustionChecks < 1 {
		return fmt.Errorf("BROWSER_EXHAUSTION_CHECKS must be at least 1")
	}

	if c.Browser.MaxExpansions < 1 {
		return fmt.Errorf("BROWSER_MAX_EXPANSIONS must be at least 1")
	}

	if len(c.Catalog.Categories) == 0 {
		return fmt.Errorf("at least one catalog category is required")
	}

	if c.Catalog.DataDir == "" {
		return fmt.Errorf("CATALOG_DATA_DIR cannot be empty")
	}

	if c.Catalog.CategoryDelayMin > c.Catalog.CategoryDelayMax {
		return fmt.Errorf("CATALOG_CATEGORY_DELAY_MIN cannot be greater than CATALOG_CATEGORY_DELAY_MAX")
	}

	if c.Database.Enabled && c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Redis.Enabled && !c.Database.Enabled {
		return fmt.Errorf("REDIS_ENABLED requires DB_ENABLED: events are relayed from the outbox")
	}

	return nil
}

// DSN returns the postgres connection string for the database section.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User), url.QueryEscape(d.Password), d.Host, d.Port, d.Name, d.SSLMode)
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/134.0.0.0 Safari/537.36"

const categoryBaseURL = "https://tienda.surtiapp.com.co/WithoutLoginB2B/Store/SearchByCategoryResults/"

// DefaultCategories is the storefront category list scraped on every run.
func DefaultCategories() []Category {
	return []Category{
		{Name: "Insecticidas", URL: categoryBaseURL + "Insecticidas/98383dff-e904-ea11-add2-501ac5356f6d"},
		{Name: "Cocina", URL: "https://www.surtiapp.com.co/WithoutLoginB2B/Store/SearchByCategoryResults/Cocina/b1383dff-e904-ea11-add2-501ac5356f6d"},
		{Name: "Baño", URL: categoryBaseURL + "Ba%C3%B1o/7d383dff-e904-ea11-add2-501ac5356f6d"},
		{Name: "Pisos y Muebles", URL: categoryBaseURL + "Pisos%20y%20Muebles/5b383dff-e904-ea11-add2-501ac5356f6d"},
		{Name: "Cuidado Corporal", URL: categoryBaseURL + "Cuidado%20Corporal/734903dd-1420-ea11-a601-0004ffd345f9"},
		{Name: "Hogar", URL: categoryBaseURL + "Hogar/4a8541a7-1621-ea11-a601-0004ffd345f9"},
		{Name: "Implementos para limpieza", URL: categoryBaseURL + "Implementos%20para%20limpieza/f1b950d1-2597-eb11-85aa-000d3a914014"},
		{Name: "Servilletas y Toallas de Cocina", URL: categoryBaseURL + "Servilletas%20y%20Toallas%20de%20Cocina/b50dcfd7-6875-ed11-9d78-000d3a93fe17"},
		{Name: "Ropa", URL: categoryBaseURL + "Ropa/a5383dff-e904-ea11-add2-501ac5356f6d"},
	}
}

func validateURL(key, value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", key, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s must include scheme and host", key)
	}
	return nil
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

// getCategoriesOrDefault parses "Name=URL" entries separated by semicolons.
// The URL may itself contain '=' characters; only the first one splits.
func getCategoriesOrDefault(key string, defaultValue []Category) ([]Category, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	var categories []Category
	for _, entry := range strings.Split(value, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, rawURL, ok := strings.Cut(entry, "=")
		name, rawURL = strings.TrimSpace(name), strings.TrimSpace(rawURL)
		if !ok || name == "" || rawURL == "" {
			return nil, fmt.Errorf("%s: invalid entry %q, want Name=URL", key, entry)
		}
		if err := validateURL(key, rawURL); err != nil {
			return nil, err
		}
		categories = append(categories, Category{Name: name, URL: rawURL})
	}
	return categories, nil
}
