// Package render implements LightweightRenderer (spec §4.9): HTTP GET +
// in-process DOM parse + sandboxed execution of inline scripts, plus the
// signals for deciding whether a full browser is needed. The JS VM has no
// DOM bindings, so scripts cannot read or change the document and the
// returned HTML is the fetched HTML unchanged.
//
// Grounded on transport.NewClient (shared utls fingerprint with
// intelligence.Engine) for the HTTP leg, and on dop251/goja — the one
// dependency this module pulls in that no pack example repo uses, named
// here because no example repo exercises in-process JS execution and goja
// is the standard pure-Go sandboxed-JS choice for this concern.
package render

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dop251/goja"

	"github.com/use-agent/sift/transport"
)

// Options configures one Render call.
type Options struct {
	Headers        map[string]string
	Timeout        time.Duration
	MinContentLength int
	MaxScripts     int           // script-execution budget; 0 = DefaultMaxScripts
	ScriptTimeout  time.Duration // per-script wall budget; 0 = DefaultScriptTimeout
}

const (
	DefaultMaxScripts    = 25
	DefaultScriptTimeout = 200 * time.Millisecond
)

// Detection reports the signals spec §4.9 uses to decide whether a full
// browser is needed instead.
type Detection struct {
	NeedsFullBrowser  bool
	HasComplexJS      bool
	HasWebGL          bool
	HasServiceWorker  bool
}

// Result is LightweightRenderer's render() contract.
type Result struct {
	HTML             string
	FinalURL         string
	StatusCode       int
	JSExecuted       bool
	ScriptsExecuted  int
	ScriptsSkipped   int
	ScriptErrors     []string
	Cookies          []*http.Cookie
	Timing           time.Duration
	Detection        Detection
}

// Renderer executes the render() contract.
type Renderer struct {
	client *http.Client
}

// New creates a Renderer.
func New() *Renderer {
	return &Renderer{client: transport.NewClient(10 * time.Second)}
}

var challengeMarkers = []string{"g-recaptcha", "cf-challenge", "cf_chl_opt", "checking your browser", "cloudflare-challenge"}

// Render fetches url, builds an in-process DOM, executes its inline
// scripts in a sandboxed goja VM under a script-count and per-script time
// budget, and reports whether a full browser looks necessary. Script
// errors and a DOM parse failure are reported on Result.ScriptErrors and
// scripts past the budget are counted in Result.ScriptsSkipped; a failure
// to build the request, fetch the page or read its body is returned as an
// error.
func (r *Renderer) Render(ctx context.Context, rawURL string, opts Options) (Result, error) {
	start := time.Now()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("render: build request: %w", err)
	}
	transport.ApplyDefaultHeaders(req, opts.Headers)

	resp, err := r.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("render: fetch: %w", err)
	}
	defer resp.Body.Close()

	const maxBody = 10 << 20
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Result{}, fmt.Errorf("render: read body: %w", err)
	}

	result := Result{
		HTML:       string(body),
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Cookies:    resp.Cookies(),
	}

	maxScripts := opts.MaxScripts
	if maxScripts <= 0 {
		maxScripts = DefaultMaxScripts
	}
	scriptTimeout := opts.ScriptTimeout
	if scriptTimeout <= 0 {
		scriptTimeout = DefaultScriptTimeout
	}

	result.HTML, result.JSExecuted, result.ScriptsExecuted, result.ScriptsSkipped, result.ScriptErrors = r.executeInlineScripts(result.HTML, maxScripts, scriptTimeout)

	minLen := opts.MinContentLength
	if minLen == 0 {
		minLen = 50
	}
	result.Detection = detect(result.HTML, result.ScriptsSkipped, minLen)
	result.Timing = time.Since(start)
	return result, nil
}

// executeInlineScripts runs every inline <script> (no src, no type or a
// JS-ish type) through a fresh goja VM with no DOM bindings, up to
// maxScripts; anything past the budget is counted as skipped, never
// executed partially. Scripts cannot touch the document, so newHTML is
// always html unchanged.
func (r *Renderer) executeInlineScripts(html string, maxScripts int, perScriptTimeout time.Duration) (newHTML string, executed bool, ran, skipped int, errs []string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html, false, 0, 0, []string{fmt.Sprintf("render: parse DOM: %v", err)}
	}

	scripts := doc.Find("script")
	scripts.Each(func(i int, s *goquery.Selection) {
		if _, hasSrc := s.Attr("src"); hasSrc {
			return
		}
		typ, _ := s.Attr("type")
		if typ != "" && typ != "text/javascript" && typ != "application/javascript" {
			return
		}
		code := s.Text()
		if strings.TrimSpace(code) == "" {
			return
		}
		if ran >= maxScripts {
			skipped++
			return
		}
		if err := runSandboxed(code, perScriptTimeout); err != nil {
			errs = append(errs, err.Error())
		}
		ran++
	})

	if ran > 0 {
		executed = true
	}
	return html, executed, ran, skipped, errs
}

// runSandboxed executes one script in a fresh goja VM with no network or
// filesystem bindings exposed, aborting if it runs past budget.
func runSandboxed(code string, budget time.Duration) (err error) {
	vm := goja.New()
	done := make(chan error, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("script panicked: %v", rec)
			}
		}()
		_, runErr := vm.RunString(code)
		done <- runErr
	}()

	select {
	case err = <-done:
		return err
	case <-time.After(budget):
		vm.Interrupt("render: script exceeded time budget")
		return fmt.Errorf("render: script exceeded %s budget", budget)
	}
}

// detect implements spec §4.9's needsFullBrowser heuristics.
func detect(html string, scriptsSkipped int, minContentLength int) Detection {
	lower := strings.ToLower(html)

	hasWebGL := strings.Contains(lower, "webgl") || strings.Contains(lower, "getcontext(\"webgl\"") || strings.Contains(lower, "getcontext('webgl'")
	hasServiceWorker := strings.Contains(lower, "serviceworker")
	hasChallenge := containsAny(lower, challengeMarkers)
	scriptBudgetExceeded := scriptsSkipped > 0

	textLen := len(stripTags(html))
	tooShort := textLen < minContentLength

	needsFullBrowser := hasWebGL || hasServiceWorker || hasChallenge || scriptBudgetExceeded || tooShort

	return Detection{
		NeedsFullBrowser: needsFullBrowser,
		HasComplexJS:     scriptBudgetExceeded,
		HasWebGL:         hasWebGL,
		HasServiceWorker: hasServiceWorker,
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func stripTags(html string) string {
	var sb strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
