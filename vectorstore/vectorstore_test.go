package vectorstore

import "testing"

func TestStore_AddDimensionMismatch(t *testing.T) {
	s := New(3)
	err := s.Add(Record{ID: "a", Vector: []float32{1, 2}})
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestStore_SearchRanksByCosineSimilarity(t *testing.T) {
	s := New(2)
	_ = s.Add(Record{ID: "same", Vector: []float32{1, 0}, EntityType: EntitySkill})
	_ = s.Add(Record{ID: "orthogonal", Vector: []float32{0, 1}, EntityType: EntitySkill})
	_ = s.Add(Record{ID: "opposite", Vector: []float32{-1, 0}, EntityType: EntitySkill})

	matches, err := s.Search([]float32{1, 0}, SearchOptions{Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3", len(matches))
	}
	if matches[0].ID != "same" {
		t.Errorf("top match = %q, want same", matches[0].ID)
	}
	if matches[0].Score < matches[1].Score || matches[1].Score < matches[2].Score {
		t.Errorf("matches not descending: %+v", matches)
	}
}

func TestStore_SearchMinScoreFilters(t *testing.T) {
	s := New(2)
	_ = s.Add(Record{ID: "same", Vector: []float32{1, 0}})
	_ = s.Add(Record{ID: "opposite", Vector: []float32{-1, 0}})

	matches, err := s.Search([]float32{1, 0}, SearchOptions{MinScore: 0.5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "same" {
		t.Errorf("expected only 'same' to pass MinScore, got %+v", matches)
	}
}

func TestStore_SearchFilterByMetadata(t *testing.T) {
	s := New(2)
	_ = s.Add(Record{ID: "a", Vector: []float32{1, 0}, Domain: "example.com", EntityType: EntitySkill})
	_ = s.Add(Record{ID: "b", Vector: []float32{1, 0}, Domain: "other.com", EntityType: EntitySkill})

	matches, err := s.Search([]float32{1, 0}, SearchOptions{Filter: Filter{Domain: "example.com"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "a" {
		t.Errorf("expected only domain-matching record, got %+v", matches)
	}
}

func TestStore_DeleteByID(t *testing.T) {
	s := New(2)
	_ = s.Add(Record{ID: "a", Vector: []float32{1, 0}})

	if n := s.Delete("a", Filter{}); n != 1 {
		t.Errorf("Delete returned %d, want 1", n)
	}
	if _, ok := s.Get("a"); ok {
		t.Error("expected record gone after Delete")
	}
}

func TestStore_DeleteByFilter(t *testing.T) {
	s := New(2)
	_ = s.Add(Record{ID: "a", Vector: []float32{1, 0}, EntityType: EntityPattern})
	_ = s.Add(Record{ID: "b", Vector: []float32{1, 0}, EntityType: EntitySkill})

	n := s.Delete("", Filter{EntityType: EntityPattern})
	if n != 1 {
		t.Errorf("Delete by filter returned %d, want 1", n)
	}
	if _, ok := s.Get("a"); ok {
		t.Error("expected pattern record deleted")
	}
	if _, ok := s.Get("b"); !ok {
		t.Error("expected skill record to survive")
	}
}

func TestStore_GetStats(t *testing.T) {
	s := New(4)
	_ = s.Add(Record{ID: "a", Vector: []float32{1, 0, 0, 0}})
	stats := s.GetStats()
	if stats.Count != 1 || stats.Dimensions != 4 {
		t.Errorf("GetStats = %+v, want Count=1 Dimensions=4", stats)
	}
}
