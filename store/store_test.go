package store

import (
	"path/filepath"
	"testing"
	"time"
)

func TestStore_SaveImmediateThenLoad(t *testing.T) {
	dir := t.TempDir()
	s := New[map[string]int](filepath.Join(dir, "data.json"), 50*time.Millisecond)

	if err := s.SaveImmediate(map[string]int{"a": 1}); err != nil {
		t.Fatalf("SaveImmediate: %v", err)
	}

	got, ok, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true after SaveImmediate")
	}
	if got["a"] != 1 {
		t.Errorf("got %v, want a=1", got)
	}

	stats := s.GetStats()
	if stats.ActualWrites != 1 {
		t.Errorf("ActualWrites = %d, want 1", stats.ActualWrites)
	}
}

func TestStore_SaveDebouncesCoalescing(t *testing.T) {
	dir := t.TempDir()
	s := New[int](filepath.Join(dir, "n.json"), 30*time.Millisecond)

	s.Save(1)
	s.Save(2)
	s.Save(3)

	time.Sleep(100 * time.Millisecond)

	got, ok, err := s.Load()
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if got != 3 {
		t.Errorf("got %d, want 3 (latest payload wins)", got)
	}

	stats := s.GetStats()
	if stats.ActualWrites != 1 {
		t.Errorf("ActualWrites = %d, want 1 (debounced)", stats.ActualWrites)
	}
	if stats.DebouncedSkips != 2 {
		t.Errorf("DebouncedSkips = %d, want 2", stats.DebouncedSkips)
	}
}

func TestStore_FlushForcesWrite(t *testing.T) {
	dir := t.TempDir()
	s := New[int](filepath.Join(dir, "n.json"), time.Hour)

	s.Save(42)
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got, ok, err := s.Load()
	if err != nil || !ok || got != 42 {
		t.Fatalf("got %d ok=%v err=%v, want 42", got, ok, err)
	}
}

func TestStore_CancelDropsPending(t *testing.T) {
	dir := t.TempDir()
	s := New[int](filepath.Join(dir, "n.json"), 20*time.Millisecond)

	s.Save(99)
	s.Cancel()

	time.Sleep(60 * time.Millisecond)

	if s.Exists() {
		t.Error("expected no file to have been written after Cancel")
	}
}

func TestStore_LoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	s := New[int](filepath.Join(dir, "missing.json"), time.Second)

	_, ok, err := s.Load()
	if err != nil {
		t.Fatalf("Load on missing file should not error: %v", err)
	}
	if ok {
		t.Error("expected ok=false for missing file")
	}
}

func TestStore_Delete(t *testing.T) {
	dir := t.TempDir()
	s := New[int](filepath.Join(dir, "n.json"), time.Second)

	_ = s.SaveImmediate(7)
	if !s.Exists() {
		t.Fatal("expected file to exist after SaveImmediate")
	}
	if err := s.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.Exists() {
		t.Error("expected file gone after Delete")
	}
}
