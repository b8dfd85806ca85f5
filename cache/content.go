package cache

import (
	"sync"
	"time"

	"github.com/use-agent/sift/simhash"
)

// contentRecord is what ContentCache stores per URL.
type contentRecord struct {
	html        string
	contentHash uint64
	fetchedAt   time.Time
}

// ContentCache is a standalone per-URL record map (it holds no Store)
// providing content-change detection via SimHash DOM fingerprinting, so a
// caller can decide whether a cached page is still
// representative of the live one without refetching a second time.
type ContentCache struct {
	mu      sync.RWMutex
	records map[string]*contentRecord
}

// NewContentCache creates an empty ContentCache.
func NewContentCache() *ContentCache {
	return &ContentCache{records: make(map[string]*contentRecord)}
}

// Record stores html's SimHash fingerprint for url, replacing any prior
// record.
func (c *ContentCache) Record(url, html string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[url] = &contentRecord{
		html:        html,
		contentHash: simhash.FingerprintDOM(html),
		fetchedAt:   time.Now(),
	}
}

// HasContentChanged recomputes newHTML's fingerprint and compares it
// against the last recorded one for url. A url with no prior record is
// reported as changed (nothing to compare against). The hash is advisory:
// it is a structural fingerprint, never a uniqueness key.
func (c *ContentCache) HasContentChanged(url, newHTML string, threshold int) (changed bool, hadPrior bool) {
	c.mu.RLock()
	rec, ok := c.records[url]
	c.mu.RUnlock()

	if !ok {
		return true, false
	}

	newHash := simhash.FingerprintDOM(newHTML)
	return simhash.Distance(rec.contentHash, newHash) > threshold, true
}

// ClearDomain drops every recorded fingerprint whose URL matches domain.
func (c *ContentCache) ClearDomain(domain string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.records {
		if keyMatchesDomain(k, domain) {
			delete(c.records, k)
		}
	}
}
