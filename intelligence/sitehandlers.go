package intelligence

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/use-agent/sift/models"
)

// SiteHandler is a built-in strategy for one widely-used JSON API, named
// in spec §4.8's "api:<site>" step.
type SiteHandler interface {
	Name() string
	Matches(rawURL string) bool
	BuildAPIURL(rawURL string) (string, error)
	Extract(body []byte) (ContentResult, error)
}

func builtinSiteHandlers() []SiteHandler {
	return []SiteHandler{
		redditHandler{},
		hackerNewsHandler{},
		githubHandler{},
		wikipediaHandler{},
		stackExchangeHandler{},
		npmHandler{},
	}
}

// --- Reddit: appending .json to any listing/comments URL returns its JSON ---

type redditHandler struct{}

func (redditHandler) Name() string { return "reddit" }

func (redditHandler) Matches(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && strings.Contains(u.Hostname(), "reddit.com")
}

func (redditHandler) BuildAPIURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + ".json"
	return u.String(), nil
}

func (redditHandler) Extract(body []byte) (ContentResult, error) {
	var listing []struct {
		Data struct {
			Children []struct {
				Data struct {
					Title    string `json:"title"`
					Selftext string `json:"selftext"`
					Body     string `json:"body"`
				} `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return ContentResult{}, fmt.Errorf("reddit: decode: %w", err)
	}

	var title string
	var parts []string
	for _, l := range listing {
		for _, c := range l.Data.Children {
			if title == "" && c.Data.Title != "" {
				title = c.Data.Title
			}
			if c.Data.Selftext != "" {
				parts = append(parts, c.Data.Selftext)
			}
			if c.Data.Body != "" {
				parts = append(parts, c.Data.Body)
			}
		}
	}
	text := strings.Join(parts, "\n\n")
	return ContentResult{Title: title, Content: models.Content{Text: text, Markdown: text}}, nil
}

// --- Hacker News: Firebase REST API ---

type hackerNewsHandler struct{}

func (hackerNewsHandler) Name() string { return "hackernews" }

func (hackerNewsHandler) Matches(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && strings.Contains(u.Hostname(), "news.ycombinator.com")
}

func (hackerNewsHandler) BuildAPIURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	id := u.Query().Get("id")
	if id == "" {
		return "", fmt.Errorf("hackernews: no item id in URL")
	}
	return fmt.Sprintf("https://hacker-news.firebaseio.com/v0/item/%s.json", id), nil
}

func (hackerNewsHandler) Extract(body []byte) (ContentResult, error) {
	var item struct {
		Title string `json:"title"`
		Text  string `json:"text"`
		URL   string `json:"url"`
	}
	if err := json.Unmarshal(body, &item); err != nil {
		return ContentResult{}, fmt.Errorf("hackernews: decode: %w", err)
	}
	text := item.Text
	if text == "" {
		text = item.URL
	}
	return ContentResult{Title: item.Title, Content: models.Content{Text: text, Markdown: text}}, nil
}

// --- GitHub: REST v3 repository/issue endpoints ---

type githubHandler struct{}

func (githubHandler) Name() string { return "github" }

func (githubHandler) Matches(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && u.Hostname() == "github.com"
}

func (githubHandler) BuildAPIURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return "", fmt.Errorf("github: URL does not name an owner/repo")
	}
	owner, repo := parts[0], parts[1]
	if len(parts) >= 4 && parts[2] == "issues" {
		return fmt.Sprintf("https://api.github.com/repos/%s/%s/issues/%s", owner, repo, parts[3]), nil
	}
	return fmt.Sprintf("https://api.github.com/repos/%s/%s", owner, repo), nil
}

func (githubHandler) Extract(body []byte) (ContentResult, error) {
	var repo struct {
		Name        string `json:"name"`
		FullName    string `json:"full_name"`
		Description string `json:"description"`
		Title       string `json:"title"`
		Body        string `json:"body"`
	}
	if err := json.Unmarshal(body, &repo); err != nil {
		return ContentResult{}, fmt.Errorf("github: decode: %w", err)
	}
	title := repo.Title
	if title == "" {
		title = repo.FullName
	}
	text := repo.Body
	if text == "" {
		text = repo.Description
	}
	return ContentResult{Title: title, Content: models.Content{Text: text, Markdown: text}}, nil
}

// --- Wikipedia: REST summary API ---

type wikipediaHandler struct{}

func (wikipediaHandler) Name() string { return "wikipedia" }

func (wikipediaHandler) Matches(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && strings.HasSuffix(u.Hostname(), "wikipedia.org")
}

func (wikipediaHandler) BuildAPIURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	const prefix = "/wiki/"
	if !strings.HasPrefix(u.Path, prefix) {
		return "", fmt.Errorf("wikipedia: not an article URL")
	}
	title := strings.TrimPrefix(u.Path, prefix)
	return fmt.Sprintf("https://%s/api/rest_v1/page/summary/%s", u.Hostname(), title), nil
}

func (wikipediaHandler) Extract(body []byte) (ContentResult, error) {
	var summary struct {
		Title   string `json:"title"`
		Extract string `json:"extract"`
	}
	if err := json.Unmarshal(body, &summary); err != nil {
		return ContentResult{}, fmt.Errorf("wikipedia: decode: %w", err)
	}
	return ContentResult{Title: summary.Title, Content: models.Content{Text: summary.Extract, Markdown: summary.Extract}}, nil
}

// --- StackExchange API v2.3 ---

type stackExchangeHandler struct{}

func (stackExchangeHandler) Name() string { return "stackexchange" }

func (stackExchangeHandler) Matches(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && (strings.Contains(u.Hostname(), "stackoverflow.com") || strings.Contains(u.Hostname(), "stackexchange.com"))
}

func (stackExchangeHandler) BuildAPIURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	// .../questions/<id>/<slug>
	for i, p := range parts {
		if p == "questions" && i+1 < len(parts) {
			if _, err := strconv.Atoi(parts[i+1]); err == nil {
				site := "stackoverflow"
				if strings.Contains(u.Hostname(), "stackexchange.com") {
					site = strings.TrimSuffix(u.Hostname(), ".stackexchange.com")
				}
				return fmt.Sprintf("https://api.stackexchange.com/2.3/questions/%s?site=%s&filter=withbody", parts[i+1], site), nil
			}
		}
	}
	return "", fmt.Errorf("stackexchange: not a question URL")
}

func (stackExchangeHandler) Extract(body []byte) (ContentResult, error) {
	var resp struct {
		Items []struct {
			Title string `json:"title"`
			Body  string `json:"body"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ContentResult{}, fmt.Errorf("stackexchange: decode: %w", err)
	}
	if len(resp.Items) == 0 {
		return ContentResult{}, fmt.Errorf("stackexchange: no items in response")
	}
	item := resp.Items[0]
	return ContentResult{Title: item.Title, Content: models.Content{Text: item.Body, Markdown: item.Body}}, nil
}

// --- NPM registry ---

type npmHandler struct{}

func (npmHandler) Name() string { return "npm" }

func (npmHandler) Matches(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && u.Hostname() == "www.npmjs.com"
}

func (npmHandler) BuildAPIURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	const prefix = "/package/"
	if !strings.HasPrefix(u.Path, prefix) {
		return "", fmt.Errorf("npm: not a package URL")
	}
	pkg := strings.TrimPrefix(u.Path, prefix)
	return "https://registry.npmjs.org/" + pkg, nil
}

func (npmHandler) Extract(body []byte) (ContentResult, error) {
	var pkg struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Readme      string `json:"readme"`
	}
	if err := json.Unmarshal(body, &pkg); err != nil {
		return ContentResult{}, fmt.Errorf("npm: decode: %w", err)
	}
	text := pkg.Readme
	if text == "" {
		text = pkg.Description
	}
	return ContentResult{Title: pkg.Name, Content: models.Content{Text: text, Markdown: text}}, nil
}
