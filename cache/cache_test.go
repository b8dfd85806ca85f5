package cache

import (
	"testing"
	"time"
)

func TestKey_SortsParamsLexically(t *testing.T) {
	k1 := Key("https://example.com/page", map[string]string{"b": "2", "a": "1"})
	k2 := Key("https://example.com/page", map[string]string{"a": "1", "b": "2"})
	if k1 != k2 {
		t.Errorf("expected order-independent keys, got %q vs %q", k1, k2)
	}
}

func TestStore_GetSetExpiry(t *testing.T) {
	s := New[string](10)
	s.Set("k", "v", 30*time.Millisecond)

	if v, ok := s.Get("k"); !ok || v != "v" {
		t.Fatalf("expected fresh hit, got ok=%v v=%q", ok, v)
	}

	time.Sleep(60 * time.Millisecond)
	if _, ok := s.Get("k"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestStore_EvictsOldest10PercentAtCapacity(t *testing.T) {
	s := New[int](10)
	for i := 0; i < 10; i++ {
		s.Set(string(rune('a'+i)), i, time.Hour)
		time.Sleep(time.Millisecond)
	}
	// at capacity; one more insert should evict the oldest entry
	s.Set("k", 99, time.Hour)

	if _, ok := s.Get("a"); ok {
		t.Error("expected the oldest entry to have been evicted")
	}
	if v, ok := s.Get("k"); !ok || v != 99 {
		t.Error("expected newly inserted entry to be present")
	}
}

func TestStore_Cleanup(t *testing.T) {
	s := New[int](10)
	s.Set("expired", 1, time.Millisecond)
	s.Set("fresh", 2, time.Hour)
	time.Sleep(10 * time.Millisecond)

	s.Cleanup()

	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after cleanup", s.Len())
	}
	if _, ok := s.Get("fresh"); !ok {
		t.Error("expected fresh entry to survive cleanup")
	}
}

func TestStore_ClearDomain(t *testing.T) {
	s := New[int](10)
	s.Set("https://sub.example.com/a", 1, time.Hour)
	s.Set("https://example.com/b", 2, time.Hour)
	s.Set("https://other.com/c", 3, time.Hour)

	s.ClearDomain("example.com")

	if _, ok := s.Get("https://sub.example.com/a"); ok {
		t.Error("expected subdomain entry cleared")
	}
	if _, ok := s.Get("https://example.com/b"); ok {
		t.Error("expected exact-domain entry cleared")
	}
	if _, ok := s.Get("https://other.com/c"); !ok {
		t.Error("expected unrelated domain entry to survive")
	}
}

func TestContentCache_HasContentChanged(t *testing.T) {
	c := NewContentCache()
	url := "https://example.com/page"
	html1 := `<html><body><div><h1>Title</h1><p>Some text here</p></div></body></html>`

	if changed, hadPrior := c.HasContentChanged(url, html1, 3); hadPrior || !changed {
		t.Errorf("expected no prior record to report changed=true hadPrior=false, got changed=%v hadPrior=%v", changed, hadPrior)
	}

	c.Record(url, html1)

	if changed, hadPrior := c.HasContentChanged(url, html1, 3); !hadPrior || changed {
		t.Errorf("expected identical content to report unchanged, got changed=%v hadPrior=%v", changed, hadPrior)
	}

	html2 := `<html><body><table><tr><td>A</td><td>B</td></tr></table></body></html>`
	if changed, hadPrior := c.HasContentChanged(url, html2, 3); !hadPrior || !changed {
		t.Errorf("expected structurally different content to report changed=true, got changed=%v hadPrior=%v", changed, hadPrior)
	}
}
