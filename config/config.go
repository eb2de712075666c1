package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
	LLM       LLMConfig
	Database  DatabaseConfig
	Ranking   RankingConfig
	Preview   PreviewConfig
	Webhook   WebhookConfig
}

// CacheConfig controls the preview result cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached previews.
	MaxEntries int // default: 1000
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls browser launches.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// Profile selects launch arguments: "standard" or "restricted".
	// Restricted is required inside containers without user namespaces.
	Profile string // default: "standard"

	// DefaultProxy is the default proxy URL for all requests.
	DefaultProxy string

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// LaunchTimeout bounds process start + CDP connect.
	LaunchTimeout time.Duration // default: 30s
}

// ScraperConfig controls page fetching.
type ScraperConfig struct {
	// NavigationTimeout is the max time for one navigation + wait.
	NavigationTimeout time.Duration // default: 20s

	// SettleDelay is the fixed wait after scroll-to-bottom.
	SettleDelay time.Duration // default: 1.5s

	// UserAgent is sent on every navigation.
	UserAgent string

	// AcceptLanguage is sent on every navigation.
	AcceptLanguage string // default: "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7"

	// BlockedResourceTypes lists resource types blocked by default.
	// default: ["Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string

	// BlockAds blocks well-known ad and tracking hosts.
	BlockAds bool // default: true

	// MaxTextRunes bounds the visible text passed as model context.
	MaxTextRunes int // default: 6000
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// LLMConfig controls the reconciliation model endpoint.
type LLMConfig struct {
	// APIKey is the model credential. Empty disables model reconciliation.
	APIKey string

	// Model is the chat model name.
	Model string // default: "gpt-4o-mini"

	// BaseURL is any OpenAI-compatible endpoint.
	BaseURL string // default: "https://api.openai.com/v1"

	// Timeout bounds a single completion call.
	Timeout time.Duration // default: 30s
}

// DatabaseConfig controls the listing store.
type DatabaseConfig struct {
	// DSN is a Postgres connection string. Empty selects the in-memory store.
	DSN string

	MaxOpenConns int           // default: 5
	ConnMaxIdle  time.Duration // default: 5m
}

// RankingConfig controls ranking ingestion.
type RankingConfig struct {
	// Site is the ranking source key in the catalog.
	Site string // default: "oliveyoung"

	// CatalogFile optionally overrides the built-in category catalog (YAML).
	CatalogFile string

	// Categories restricts ingestion to these keys. Empty means all.
	Categories []string

	// InterCategoryDelay is the pause between two categories.
	InterCategoryDelay time.Duration // default: 3s

	// Schedule is a 5-field cron expression. Empty disables the scheduler.
	Schedule string // default: "0 */6 * * *"

	// MaxListings caps listings kept per category.
	MaxListings int // default: 50
}

// PreviewConfig controls ad-hoc link previews.
type PreviewConfig struct {
	// Concurrency is the number of tabs opened at once.
	Concurrency int // default: 5

	// Timeout bounds each URL's fetch + extract.
	Timeout time.Duration // default: 25s

	// FetchMode is "auto" (static HTTP first), "browser" or "http".
	FetchMode string // default: "auto"
}

// WebhookConfig controls ingestion event delivery.
type WebhookConfig struct {
	URL    string
	Secret string
}

// Load reads configuration from environment variables with sane defaults.
// A .env file in the working directory is applied first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	return &Config{
		Server: ServerConfig{
			Host: envOr("CONCIERGE_HOST", "0.0.0.0"),
			Port: envIntOr("CONCIERGE_PORT", 8080),
			Mode: envOr("CONCIERGE_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:      envBoolOr("CONCIERGE_HEADLESS", true),
			Profile:       envOr("CONCIERGE_BROWSER_PROFILE", "standard"),
			DefaultProxy:  os.Getenv("CONCIERGE_PROXY"),
			BrowserBin:    os.Getenv("CONCIERGE_BROWSER_BIN"),
			LaunchTimeout: envDurationOr("CONCIERGE_LAUNCH_TIMEOUT", 30*time.Second),
		},
		Scraper: ScraperConfig{
			NavigationTimeout: envDurationOr("CONCIERGE_NAV_TIMEOUT", 20*time.Second),
			SettleDelay:       envDurationOr("CONCIERGE_SETTLE_DELAY", 1500*time.Millisecond),
			UserAgent: envOr("CONCIERGE_USER_AGENT",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"),
			AcceptLanguage: envOr("CONCIERGE_ACCEPT_LANGUAGE", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7"),
			BlockedResourceTypes: envSliceOr("CONCIERGE_BLOCKED_RESOURCES", []string{
				"Stylesheet", "Font", "Media",
			}),
			BlockAds:     envBoolOr("CONCIERGE_BLOCK_ADS", true),
			MaxTextRunes: envIntOr("CONCIERGE_MAX_TEXT_RUNES", 6000),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("CONCIERGE_AUTH_ENABLED", true),
			APIKeys: envSliceOr("CONCIERGE_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("CONCIERGE_RATE_RPS", 5.0),
			Burst:             envIntOr("CONCIERGE_RATE_BURST", 10),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("CACHE_MAX_ENTRIES", 1000),
		},
		Log: LogConfig{
			Level:  envOr("CONCIERGE_LOG_LEVEL", "info"),
			Format: envOr("CONCIERGE_LOG_FORMAT", "json"),
		},
		LLM: LLMConfig{
			APIKey:  os.Getenv("CONCIERGE_LLM_API_KEY"),
			Model:   envOr("CONCIERGE_LLM_MODEL", "gpt-4o-mini"),
			BaseURL: envOr("CONCIERGE_LLM_BASE_URL", "https://api.openai.com/v1"),
			Timeout: envDurationOr("CONCIERGE_LLM_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			DSN:          os.Getenv("CONCIERGE_DATABASE_URL"),
			MaxOpenConns: envIntOr("CONCIERGE_DB_MAX_OPEN", 5),
			ConnMaxIdle:  envDurationOr("CONCIERGE_DB_CONN_MAX_IDLE", 5*time.Minute),
		},
		Ranking: RankingConfig{
			Site:               envOr("CONCIERGE_RANKING_SITE", "oliveyoung"),
			CatalogFile:        os.Getenv("CONCIERGE_RANKING_CATALOG"),
			Categories:         envSliceOr("CONCIERGE_RANKING_CATEGORIES", nil),
			InterCategoryDelay: envDurationOr("CONCIERGE_RANKING_DELAY", 3*time.Second),
			Schedule:           envOr("CONCIERGE_RANKING_SCHEDULE", "0 */6 * * *"),
			MaxListings:        envIntOr("CONCIERGE_RANKING_MAX_LISTINGS", 50),
		},
		Preview: PreviewConfig{
			Concurrency: envIntOr("CONCIERGE_PREVIEW_CONCURRENCY", 5),
			Timeout:     envDurationOr("CONCIERGE_PREVIEW_TIMEOUT", 25*time.Second),
			FetchMode:   envOr("CONCIERGE_PREVIEW_FETCH_MODE", "auto"),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("CONCIERGE_WEBHOOK_URL"),
			Secret: os.Getenv("CONCIERGE_WEBHOOK_SECRET"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
