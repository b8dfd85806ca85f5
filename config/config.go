// Package config loads Config from SIFT_-prefixed environment variables
// with sane defaults.
//
// Grounded on the teacher's config/config.go (env-var loading with typed
// envOr/envIntOr/... helpers, one struct per concern), extended with the
// sections the spec's additional components need: LearningConfig,
// ProceduralConfig, VerificationConfig, RenderConfig and VectorConfig,
// alongside BrowserConfig reshaped for browser.Config (C10) rather than
// the teacher's bespoke Rod wiring.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Browser      BrowserConfig
	RateLimit    RateLimitConfig
	Cache        CacheConfig
	Log          LogConfig
	AdaptivePool AdaptivePoolConfig
	Learning     LearningConfig
	Procedural   ProceduralConfig
	Verification VerificationConfig
	Render       RenderConfig
	Vector       VectorConfig
}

// ServerConfig controls the demo HTTP/CLI surface.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls browser.RodDriver (C10).
type BrowserConfig struct {
	Headless             bool // default: true
	NoSandbox            bool // default: false
	BrowserBin           string
	DefaultProxy         string
	MinPages             int      // default: 3
	MaxPages             int      // default: 10
	BlockedResourceTypes []string // default: ["Image", "Stylesheet", "Font", "Media"]
}

// RateLimitConfig holds ratelimit.Limiter settings (C2). cmd/sift passes
// only the backoff fields to ratelimit.New; PerMinute and Burst are loaded
// but not passed on, and SmartBrowser acquires with ratelimit.DefaultLimits.
type RateLimitConfig struct {
	PerMinute    float64       // default: 10
	Burst        int           // default: 3
	BackoffBase  time.Duration // default: 500ms
	BackoffMax   time.Duration // default: 30s
	JitterFactor float64       // default: 0.3
}

// CacheConfig holds cache.Store settings (C3). cmd/sift sizes the store
// from MaxEntries; TTL is loaded but not passed on, and SmartBrowser caches
// each result for a fixed 15 minutes.
type CacheConfig struct {
	MaxEntries int           // default: 1000
	TTL        time.Duration // default: 15m
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// AdaptivePoolConfig holds page-pool sizing knobs. cmd/sift does not pass
// them on; the browser driver's page pool is sized from BrowserConfig's
// MinPages and MaxPages.
type AdaptivePoolConfig struct {
	MinPages     int     // default: 3
	HardMax      int     // default: 20
	MemThreshold float64 // default: 0.9
	ScaleStep    float64 // default: 0.05
}

// LearningConfig controls learning.Engine's decay and persistence (C6).
type LearningConfig struct {
	GracePeriodDays        float64       // default: 7
	DecayRatePerWeek       float64       // default: 0.1
	MinConfidenceThreshold float64       // default: 0.3
	ArchiveAfterDays       float64       // default: 90
	PersistPath            string        // default: "" (disabled)
	PersistDebounce        time.Duration // default: 2s
}

// ProceduralConfig controls procedural.Memory (C7).
type ProceduralConfig struct {
	EmbeddingDimensions   int // default: 64
	MinUsesBeforeRollback int // default: 5
}

// VerificationConfig holds a default verification mode (C12). cmd/sift
// does not read it; it takes the mode from its -verify flag.
type VerificationConfig struct {
	DefaultMode string // "basic", "standard", "thorough"; default: "standard"
}

// RenderConfig holds a script budget for render.Renderer (C9). cmd/sift
// does not pass it on, so renders use DefaultMaxScripts and
// DefaultScriptTimeout.
type RenderConfig struct {
	MaxScripts    int           // default: 25
	ScriptTimeout time.Duration // default: 200ms
}

// VectorConfig holds vectorstore.Store sizing (C5). cmd/sift does not read
// it; procedural.Memory sizes its vector store from
// ProceduralConfig.EmbeddingDimensions.
type VectorConfig struct {
	Dimensions int // default: 64
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("SIFT_HOST", "0.0.0.0"),
			Port: envIntOr("SIFT_PORT", 8080),
			Mode: envOr("SIFT_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("SIFT_HEADLESS", true),
			NoSandbox:    envBoolOr("SIFT_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("SIFT_BROWSER_BIN"),
			DefaultProxy: os.Getenv("SIFT_PROXY"),
			MinPages:     envIntOr("SIFT_MIN_PAGES", 3),
			MaxPages:     envIntOr("SIFT_MAX_PAGES", 10),
			BlockedResourceTypes: envSliceOr("SIFT_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
		},
		RateLimit: RateLimitConfig{
			PerMinute:    envFloatOr("SIFT_RATE_PER_MINUTE", 10),
			Burst:        envIntOr("SIFT_RATE_BURST", 3),
			BackoffBase:  envDurationOr("SIFT_BACKOFF_BASE", 500*time.Millisecond),
			BackoffMax:   envDurationOr("SIFT_BACKOFF_MAX", 30*time.Second),
			JitterFactor: envFloatOr("SIFT_BACKOFF_JITTER", 0.3),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("SIFT_CACHE_MAX_ENTRIES", 1000),
			TTL:        envDurationOr("SIFT_CACHE_TTL", 15*time.Minute),
		},
		Log: LogConfig{
			Level:  envOr("SIFT_LOG_LEVEL", "info"),
			Format: envOr("SIFT_LOG_FORMAT", "json"),
		},
		AdaptivePool: AdaptivePoolConfig{
			MinPages:     envIntOr("SIFT_POOL_MIN_PAGES", 3),
			HardMax:      envIntOr("SIFT_POOL_HARD_MAX", 20),
			MemThreshold: envFloatOr("SIFT_POOL_MEM_THRESHOLD", 0.9),
			ScaleStep:    envFloatOr("SIFT_POOL_SCALE_STEP", 0.05),
		},
		Learning: LearningConfig{
			GracePeriodDays:        envFloatOr("SIFT_LEARNING_GRACE_DAYS", 7),
			DecayRatePerWeek:       envFloatOr("SIFT_LEARNING_DECAY_RATE", 0.1),
			MinConfidenceThreshold: envFloatOr("SIFT_LEARNING_MIN_CONFIDENCE", 0.3),
			ArchiveAfterDays:       envFloatOr("SIFT_LEARNING_ARCHIVE_DAYS", 90),
			PersistPath:            os.Getenv("SIFT_LEARNING_PERSIST_PATH"),
			PersistDebounce:        envDurationOr("SIFT_LEARNING_PERSIST_DEBOUNCE", 2*time.Second),
		},
		Procedural: ProceduralConfig{
			EmbeddingDimensions:   envIntOr("SIFT_PROCEDURAL_DIMENSIONS", 64),
			MinUsesBeforeRollback: envIntOr("SIFT_PROCEDURAL_MIN_USES", 5),
		},
		Verification: VerificationConfig{
			DefaultMode: envOr("SIFT_VERIFY_MODE", "standard"),
		},
		Render: RenderConfig{
			MaxScripts:    envIntOr("SIFT_RENDER_MAX_SCRIPTS", 25),
			ScriptTimeout: envDurationOr("SIFT_RENDER_SCRIPT_TIMEOUT", 200*time.Millisecond),
		},
		Vector: VectorConfig{
			Dimensions: envIntOr("SIFT_VECTOR_DIMENSIONS", 64),
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
