package healthlog

import (
	"testing"
	"time"
)

func TestStore_PutGetList(t *testing.T) {
	s, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	older := FromTranscript("slept badly after chemo", time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	newer := FromTranscript("appetite much better today", time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC))
	for _, a := range []*Artifact{older, newer} {
		if err := s.Put(a); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	got, err := s.Get(older.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Summary != older.Summary || got.Impact != older.Impact {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}

	all, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(all))
	}
	if all[0].ID != newer.ID {
		t.Fatalf("expected newest first")
	}
}

func TestStore_GetMissing(t *testing.T) {
	s, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if _, err := s.Get("nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
