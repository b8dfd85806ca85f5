package intelligence

import (
	"testing"

	"github.com/use-agent/sift/models"
)

type fakeLearningSource struct {
	pattern *models.ApiPattern
}

func (f fakeLearningSource) SelectBestPattern(domain, targetURL string) *models.ApiPattern {
	return f.pattern
}

func TestRedditHandler_BuildAPIURL(t *testing.T) {
	h := redditHandler{}
	got, err := h.BuildAPIURL("https://www.reddit.com/r/golang/comments/abc123/some_post/")
	if err != nil {
		t.Fatalf("BuildAPIURL: %v", err)
	}
	want := "https://www.reddit.com/r/golang/comments/abc123/some_post.json"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRedditHandler_Extract(t *testing.T) {
	h := redditHandler{}
	body := []byte(`[{"data":{"children":[{"data":{"title":"My Post","selftext":"hello world"}}]}}]`)
	res, err := h.Extract(body)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Title != "My Post" || res.Content.Text != "hello world" {
		t.Errorf("got %+v", res)
	}
}

func TestHackerNewsHandler_BuildAPIURL(t *testing.T) {
	h := hackerNewsHandler{}
	got, err := h.BuildAPIURL("https://news.ycombinator.com/item?id=12345")
	if err != nil {
		t.Fatalf("BuildAPIURL: %v", err)
	}
	want := "https://hacker-news.firebaseio.com/v0/item/12345.json"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWikipediaHandler_BuildAPIURL(t *testing.T) {
	h := wikipediaHandler{}
	got, err := h.BuildAPIURL("https://en.wikipedia.org/wiki/Go_(programming_language)")
	if err != nil {
		t.Fatalf("BuildAPIURL: %v", err)
	}
	want := "https://en.wikipedia.org/api/rest_v1/page/summary/Go_(programming_language)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNPMHandler_BuildAPIURL(t *testing.T) {
	h := npmHandler{}
	got, err := h.BuildAPIURL("https://www.npmjs.com/package/lodash")
	if err != nil {
		t.Fatalf("BuildAPIURL: %v", err)
	}
	if got != "https://registry.npmjs.org/lodash" {
		t.Errorf("got %q", got)
	}
}

func TestStrategyOrder_IncludesMatchingBuiltinHandlerOnly(t *testing.T) {
	e := New(fakeLearningSource{})
	order := e.strategyOrder("www.reddit.com", "https://www.reddit.com/r/golang/comments/abc/x/")
	foundReddit, foundNPM := false, false
	for _, s := range order {
		if s == "api:reddit" {
			foundReddit = true
		}
		if s == "api:npm" {
			foundNPM = true
		}
	}
	if !foundReddit {
		t.Error("expected api:reddit in strategy order for a reddit URL")
	}
	if foundNPM {
		t.Error("expected api:npm to be absent for a non-npm URL")
	}
}

func TestExtractHydrationData_ParsesNextData(t *testing.T) {
	html := `<html><head><title>My Page</title></head><body>
	<script id="__NEXT_DATA__" type="application/json">{"props":{"pageProps":{"title":"Widget Pro","description":"A great widget indeed"}}}</script>
	</body></html>`
	text, title, ok := extractHydrationData(html)
	if !ok {
		t.Fatal("expected hydration data to be found")
	}
	if title != "My Page" {
		t.Errorf("title = %q", title)
	}
	if text == "" {
		t.Error("expected non-empty flattened text")
	}
}

func TestApplyContentMappings_JoinsMappedPaths(t *testing.T) {
	body := []byte(`{"item":{"title":"Widget","price":"9.99"}}`)
	mappings := []models.ContentMapping{
		{SourcePath: "item.title", LogicalName: "title"},
		{SourcePath: "item.price", LogicalName: "price"},
	}
	text := applyContentMappings(body, mappings)
	if text != "Widget\n\n9.99" {
		t.Errorf("got %q", text)
	}
}
