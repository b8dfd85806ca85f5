// Package browser implements the concrete adapter behind spec §2's C10
// BrowserDriver capability: spec.md lists the full headless browser as
// deliberately out of the core's scope ("the core only sees a BrowserDriver
// capability") and marks C10's share as "spec only" — so what the core
// needs from this package is the narrow Driver interface, exercised by
// fetcher.Fetcher's playwright tier and smartbrowser's skill replay path.
//
// Grounded on the teacher's scraper/*.go (page lifecycle, stealth
// injection, hijack-based resource blocking, action vocabulary) and
// engine/adaptive_pool.go (health-scored page pool, folded in here per
// SPEC_FULL.md §C.1 instead of staying a generic HTTP-engine pool).
package browser

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/use-agent/sift/models"
)

// Config configures the underlying Chromium process and page pool.
type Config struct {
	Headless             bool
	NoSandbox            bool
	BrowserBin           string
	DefaultProxy         string
	MinPages             int
	MaxPages             int
	BlockedResourceTypes []string
}

// FetchResult is what one Fetch/RunActions call produces — the raw
// material TieredFetcher and ContentExtractor build a BrowseResult from.
type FetchResult struct {
	HTML       string
	Title      string
	StatusCode int
	FinalURL   string
	Network    []models.NetworkRequest
	Console    []models.ConsoleMessage
	WebSockets []models.WebSocketConnection
	Timing     time.Duration
}

// PoolStats is a snapshot of the page pool's current load.
type PoolStats struct {
	MaxPages    int
	ActivePages int
}

// Driver is the BrowserDriver capability spec §2 carves out of the core:
// a full headless browser with network/console/WebSocket capture.
type Driver interface {
	Fetch(ctx context.Context, rawURL string, opts models.BrowseOptions) (FetchResult, error)
	RunActions(ctx context.Context, rawURL string, actions []models.ActionStep, opts models.BrowseOptions) (FetchResult, error)
	Stats() PoolStats
	Close()
}

// RodDriver is the go-rod-backed Driver implementation.
type RodDriver struct {
	browser     *rod.Browser
	pool        *AdaptivePool
	pagesMu     sync.Mutex
	pages       map[int64]*rod.Page
	nextPageID  atomic.Int64
	cfg         Config
	activePages atomic.Int32
	startTime   time.Time

	profilesMu sync.Mutex
	profiles   map[string]*profileContext
}

// profileContext is the per-session-profile page spec §5 requires:
// "BrowserDriver contexts are per-profile and not concurrency-safe;
// SmartBrowser acquires a context via getContext(profile) which returns the
// same context for the same profile across calls." Operations against one
// profile's page are serialized by its mutex.
type profileContext struct {
	mu   sync.Mutex
	page *rod.Page
}

// New launches a headless Chromium with the teacher's stealth flag set and
// starts the adaptive page pool.
func New(cfg Config) (*RodDriver, error) {
	if cfg.MinPages < 1 {
		cfg.MinPages = 1
	}
	if cfg.MaxPages < cfg.MinPages {
		cfg.MaxPages = cfg.MinPages
	}

	l := launcher.New().Headless(cfg.Headless).NoSandbox(cfg.NoSandbox)
	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.DefaultProxy != "" {
		l = l.Proxy(cfg.DefaultProxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-prompt-on-repost"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.New(models.ErrCapabilityUnavailable, models.KindCapability, "failed to launch browser", err)
	}
	slog.Info("browser: launched", "controlURL", controlURL)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, models.New(models.ErrCapabilityUnavailable, models.KindCapability, "failed to connect to browser", err)
	}

	d := &RodDriver{
		browser:   b,
		cfg:       cfg,
		pages:     make(map[int64]*rod.Page),
		profiles:  make(map[string]*profileContext),
		startTime: time.Now(),
	}

	pool, err := NewAdaptivePool(PoolConfig{MinPages: cfg.MinPages, HardMax: cfg.MaxPages}, d.createEphemeralPage, d.destroyPage)
	if err != nil {
		b.MustClose()
		return nil, models.New(models.ErrCapabilityUnavailable, models.KindCapability, "failed to start page pool", err)
	}
	d.pool = pool

	return d, nil
}

func (d *RodDriver) createEphemeralPage() (int64, error) {
	page, err := d.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return 0, err
	}
	id := d.nextPageID.Add(1)
	d.pagesMu.Lock()
	d.pages[id] = page
	d.pagesMu.Unlock()
	return id, nil
}

func (d *RodDriver) destroyPage(id int64) {
	d.pagesMu.Lock()
	page := d.pages[id]
	delete(d.pages, id)
	d.pagesMu.Unlock()
	if page != nil {
		_ = page.Close()
	}
}

func (d *RodDriver) getPage(id int64) *rod.Page {
	d.pagesMu.Lock()
	defer d.pagesMu.Unlock()
	return d.pages[id]
}

// getProfileContext returns the same profileContext for a given session
// profile across calls, creating its page on first use.
func (d *RodDriver) getProfileContext(profile string) (*profileContext, error) {
	d.profilesMu.Lock()
	defer d.profilesMu.Unlock()

	if pc, ok := d.profiles[profile]; ok {
		return pc, nil
	}
	page, err := d.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}
	pc := &profileContext{page: page}
	d.profiles[profile] = pc
	return pc, nil
}

// Stats reports the pool's current load.
func (d *RodDriver) Stats() PoolStats {
	return PoolStats{MaxPages: d.cfg.MaxPages, ActivePages: int(d.activePages.Load())}
}

// Close drains the pool, closes every profile page, and kills the browser
// process.
func (d *RodDriver) Close() {
	slog.Info("browser: shutting down")
	d.pool.Stop()

	d.profilesMu.Lock()
	for _, pc := range d.profiles {
		pc.mu.Lock()
		_ = pc.page.Close()
		pc.mu.Unlock()
	}
	d.profiles = make(map[string]*profileContext)
	d.profilesMu.Unlock()

	d.browser.MustClose()
	slog.Info("browser: shutdown complete")
}

// Fetch navigates to rawURL, waits per opts.WaitFor, captures network,
// console, and WebSocket traffic when requested, and extracts the
// rendered HTML. Implements the BrowserDriver tier TieredFetcher escalates
// to last.
func (d *RodDriver) Fetch(ctx context.Context, rawURL string, opts models.BrowseOptions) (FetchResult, error) {
	return d.run(ctx, rawURL, nil, opts)
}

// RunActions navigates to rawURL, executes actions (a procedural skill's
// ActionSequence, typically), then extracts. Used by smartbrowser when
// replaying a skill against a live page.
func (d *RodDriver) RunActions(ctx context.Context, rawURL string, actions []models.ActionStep, opts models.BrowseOptions) (FetchResult, error) {
	return d.run(ctx, rawURL, actions, opts)
}

func (d *RodDriver) run(ctx context.Context, rawURL string, actions []models.ActionStep, opts models.BrowseOptions) (FetchResult, error) {
	start := time.Now()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var page *rod.Page
	var release func(success bool)

	if opts.SessionProfile != "" {
		pc, err := d.getProfileContext(opts.SessionProfile)
		if err != nil {
			return FetchResult{}, models.New(models.ErrCapabilityUnavailable, models.KindCapability, "failed to acquire profile page", err)
		}
		pc.mu.Lock()
		page = pc.page
		release = func(success bool) { pc.mu.Unlock() }
	} else {
		d.activePages.Add(1)
		h, err := d.pool.Get()
		if err != nil {
			d.activePages.Add(-1)
			return FetchResult{}, models.New(models.ErrCapabilityUnavailable, models.KindCapability, "failed to acquire page from pool", err)
		}
		page = d.getPage(h.ID)
		release = func(success bool) {
			_ = page.Navigate("about:blank")
			d.pool.Put(h, success)
			d.activePages.Add(-1)
		}
	}

	succeeded := false
	defer func() { release(succeeded) }()

	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		slog.Warn("browser: stealth injection failed, proceeding without it", "error", err)
	}

	router, netRec := setupHijack(page, d.cfg.BlockedResourceTypes, opts.CaptureNetwork)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := page.Context(ctx)

	var consoleRec *consoleRecorder
	if opts.CaptureConsole {
		consoleRec = watchConsole(p)
	}
	var wsRec *wsRecorder
	if opts.CaptureWebSockets {
		wsRec = watchWebSockets(p)
	}

	if err := p.Navigate(rawURL); err != nil {
		return FetchResult{}, categorizeNavError(err)
	}

	waitForLoad(p, opts)

	if len(actions) > 0 {
		if err := executeActions(ctx, page, actions); err != nil {
			return FetchResult{}, models.New(models.ErrBrowseError, models.KindTransient, "action sequence failed", err)
		}
	}

	html, err := p.HTML()
	if err != nil {
		return FetchResult{}, categorizeNavError(err)
	}

	title := evalStringOrEmpty(p, `() => document.title`)
	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = rawURL
	}
	statusCode := evalStatusCode(p)

	result := FetchResult{
		HTML:       html,
		Title:      title,
		StatusCode: statusCode,
		FinalURL:   finalURL,
		Timing:     time.Since(start),
	}
	if netRec != nil {
		result.Network = netRec.snapshot()
	}
	if consoleRec != nil {
		result.Console = consoleRec.snapshot()
	}
	if wsRec != nil {
		result.WebSockets = wsRec.snapshot()
	}

	succeeded = statusCode == 0 || (statusCode >= 200 && statusCode < 400)
	return result, nil
}

func waitForLoad(p *rod.Page, opts models.BrowseOptions) {
	if opts.WaitForSelector != "" {
		_ = p.Timeout(5 * time.Second).WaitElementsMoreThan(opts.WaitForSelector, 0)
		return
	}
	switch opts.WaitFor {
	case models.WaitNetworkIdle:
		wait := p.WaitRequestIdle(300*time.Millisecond, nil, nil, nil)
		wait()
	default:
		_ = p.WaitDOMStable(300*time.Millisecond, 0.1)
	}
}

func evalStatusCode(p *rod.Page) int {
	res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch (e) {}
		return 0;
	}`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func categorizeNavError(err error) *models.SiftError {
	return models.New(models.ErrBrowseError, models.KindTransient, "browser navigation failed", err)
}
