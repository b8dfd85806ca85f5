// Command sift is a thin CLI demo binary: it wires every component from
// config.Load() through to one SmartBrowser.Browse() call and prints the
// result as JSON.
//
// Grounded on the teacher's cmd/purify/main.go wiring order (load config,
// init logging, construct the scraper, construct the cache, serve) —
// generalized from an HTTP API server into a one-shot CLI since the spec
// names no HTTP surface, with the same numbered-comment wiring style and
// slog-based structured logging kept verbatim.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/sift/browser"
	"github.com/use-agent/sift/cache"
	"github.com/use-agent/sift/config"
	"github.com/use-agent/sift/fetcher"
	"github.com/use-agent/sift/intelligence"
	"github.com/use-agent/sift/learning"
	"github.com/use-agent/sift/models"
	"github.com/use-agent/sift/procedural"
	"github.com/use-agent/sift/ratelimit"
	"github.com/use-agent/sift/render"
	"github.com/use-agent/sift/smartbrowser"
	"github.com/use-agent/sift/verify"
)

func main() {
	targetURL := flag.String("url", "", "URL to browse")
	mode := flag.String("verify", "standard", "verification mode: basic, standard, thorough")
	flag.Parse()

	if *targetURL == "" {
		fmt.Fprintln(os.Stderr, "usage: sift -url <url> [-verify basic|standard|thorough]")
		os.Exit(2)
	}

	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("sift starting", "url", *targetURL, "mode", *mode)

	// ── 3. Initialise the browser driver (launches Chrome) ──────────
	driver, err := browser.New(browser.Config{
		Headless:             cfg.Browser.Headless,
		NoSandbox:            cfg.Browser.NoSandbox,
		BrowserBin:           cfg.Browser.BrowserBin,
		DefaultProxy:         cfg.Browser.DefaultProxy,
		MinPages:             cfg.Browser.MinPages,
		MaxPages:             cfg.Browser.MaxPages,
		BlockedResourceTypes: cfg.Browser.BlockedResourceTypes,
	})
	if err != nil {
		slog.Error("failed to initialise browser driver", "error", err)
		os.Exit(1)
	}
	defer driver.Close()

	// ── 4. Initialise the learning engine (persisted domain memory) ─
	learningEngine := learning.New(learning.DecayConfig{
		GracePeriodDays:        cfg.Learning.GracePeriodDays,
		DecayRatePerWeek:       cfg.Learning.DecayRatePerWeek,
		MinConfidenceThreshold: cfg.Learning.MinConfidenceThreshold,
		ArchiveAfterDays:       cfg.Learning.ArchiveAfterDays,
	}, cfg.Learning.PersistPath, cfg.Learning.PersistDebounce)

	// ── 5. Initialise procedural memory, intelligence and renderer ──
	proceduralMemory := procedural.New(
		cfg.Procedural.EmbeddingDimensions,
		procedural.HashEmbedder(cfg.Procedural.EmbeddingDimensions),
		cfg.Procedural.MinUsesBeforeRollback,
	)
	intel := intelligence.New(learningEngine)
	renderer := render.New()

	// ── 6. Initialise the tiered fetcher ─────────────────────────────
	fetch := fetcher.New(intel, renderer, driver, learningEngine)

	// ── 7. Initialise verification, rate limiting and response cache ─
	verifyEngine := verify.New(driverCapability{driver}, nil)
	limiter := ratelimit.New(ratelimit.BackoffConfig{
		Base:         cfg.RateLimit.BackoffBase,
		Max:          cfg.RateLimit.BackoffMax,
		JitterFactor: cfg.RateLimit.JitterFactor,
	})
	responseCache := cache.New[models.BrowseResult](cfg.Cache.MaxEntries)

	// ── 8. Assemble SmartBrowser ──────────────────────────────────────
	sb := smartbrowser.New(limiter, responseCache, learningEngine, proceduralMemory, fetch, verifyEngine, driver)

	// ── 9. Run one browse, honoring Ctrl-C ────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	opts := models.DefaultBrowseOptions()
	opts.Verify.Mode = models.VerificationMode(*mode)

	start := time.Now()
	result, err := sb.Browse(ctx, *targetURL, opts)
	slog.Info("browse finished", "url", *targetURL, "elapsed", time.Since(start))
	if err != nil {
		slog.Error("browse failed", "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		slog.Error("failed to encode result", "error", err)
		os.Exit(1)
	}
}

// driverCapability adapts browser.Driver's Fetch to verify.BrowserCapability's
// narrower FetchHTML signature, which VerificationEngine uses for
// out-of-band state checks (e.g. re-fetching a page to confirm a selector
// still matches).
type driverCapability struct {
	driver *browser.RodDriver
}

func (d driverCapability) FetchHTML(ctx context.Context, rawURL string) (string, int, error) {
	res, err := d.driver.Fetch(ctx, rawURL, models.DefaultBrowseOptions())
	if err != nil {
		return "", 0, err
	}
	return res.HTML, res.StatusCode, nil
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
