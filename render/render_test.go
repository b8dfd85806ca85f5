package render

import (
	"strings"
	"testing"
	"time"
)

func TestExecuteInlineScripts_RunsWithinBudget(t *testing.T) {
	r := New()
	html := `<html><body><script>var x = 1 + 1;</script></body></html>`
	_, executed, ran, skipped, errs := r.executeInlineScripts(html, 10, 200*time.Millisecond)
	if !executed || ran != 1 || skipped != 0 {
		t.Errorf("executed=%v ran=%d skipped=%d errs=%v", executed, ran, skipped, errs)
	}
}

func TestExecuteInlineScripts_SkipsPastBudget(t *testing.T) {
	r := New()
	html := `<html><body>
	<script>1;</script>
	<script>2;</script>
	<script>3;</script>
	</body></html>`
	_, _, ran, skipped, _ := r.executeInlineScripts(html, 2, 200*time.Millisecond)
	if ran != 2 || skipped != 1 {
		t.Errorf("ran=%d skipped=%d, want ran=2 skipped=1", ran, skipped)
	}
}

func TestExecuteInlineScripts_IgnoresExternalScripts(t *testing.T) {
	r := New()
	html := `<html><body><script src="app.js"></script></body></html>`
	_, executed, ran, _, _ := r.executeInlineScripts(html, 10, 200*time.Millisecond)
	if executed || ran != 0 {
		t.Errorf("expected external script to be ignored, got executed=%v ran=%d", executed, ran)
	}
}

func TestExecuteInlineScripts_ReportsScriptErrors(t *testing.T) {
	r := New()
	html := `<html><body><script>this is not valid javascript(((</script></body></html>`
	_, _, ran, _, errs := r.executeInlineScripts(html, 10, 200*time.Millisecond)
	if ran != 1 || len(errs) == 0 {
		t.Errorf("expected a reported script error, got ran=%d errs=%v", ran, errs)
	}
}

func TestDetect_FlagsWebGLAndServiceWorker(t *testing.T) {
	d := detect(`<script>canvas.getContext('webgl')</script>`, 0, 50)
	if !d.HasWebGL || !d.NeedsFullBrowser {
		t.Errorf("expected WebGL detection to force needsFullBrowser, got %+v", d)
	}

	d2 := detect(`navigator.serviceWorker.register('/sw.js')`, 0, 50)
	if !d2.HasServiceWorker || !d2.NeedsFullBrowser {
		t.Errorf("expected service worker detection to force needsFullBrowser, got %+v", d2)
	}
}

func TestDetect_FlagsShortPostJSContent(t *testing.T) {
	d := detect(`<html><body>hi</body></html>`, 0, 50)
	if !d.NeedsFullBrowser {
		t.Error("expected short content to require full browser")
	}
}

func TestDetect_PassesOrdinaryContent(t *testing.T) {
	html := "<html><body>" + strings.Repeat("word ", 30) + "</body></html>"
	d := detect(html, 0, 50)
	if d.NeedsFullBrowser {
		t.Errorf("expected ordinary content to not require full browser, got %+v", d)
	}
}
