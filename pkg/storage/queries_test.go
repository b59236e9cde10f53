package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuttledoc/speechd/pkg/protocol"
)

// seedStore creates a store with a fixed set of transcripts spread
// across backends and times
func seedStore(t *testing.T, dir string) *TranscriptStore {
	t.Helper()

	store, err := NewTranscriptStore(filepath.Join(dir, "seed.db"), 100)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)
	seeds := []struct {
		backend string
		text    string
		offset  time.Duration
	}{
		{"mock", "the quick brown fox", 0},
		{"mock", "jumps over the lazy dog", 10 * time.Second},
		{"remote", "battery at 100% charge", 20 * time.Second},
		{"remote", "weather report for today", 30 * time.Second},
		{"apple", "this one never happens", 40 * time.Second},
	}

	for i, seed := range seeds {
		err := store.StoreTranscript(&protocol.Transcript{
			CreatedAt: base.Add(seed.offset),
			AudioPath: "/tmp/seed.wav",
			Backend:   seed.backend,
			Text:      seed.text,
		})
		if err != nil {
			t.Fatalf("Failed to seed transcript %d: %v", i, err)
		}
	}

	return store
}

func TestGetTranscripts(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "speechd-queries-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	store := seedStore(t, tempDir)
	defer store.Close()

	t.Run("All Transcripts Newest First", func(t *testing.T) {
		results, err := store.GetTranscripts(TranscriptQuery{})
		if err != nil {
			t.Fatalf("Failed to query transcripts: %v", err)
		}
		if len(results) != 5 {
			t.Fatalf("Expected 5 transcripts, got %d", len(results))
		}
		if results[0].Text != "this one never happens" {
			t.Errorf("Expected newest first, got '%s'", results[0].Text)
		}
		if results[4].Text != "the quick brown fox" {
			t.Errorf("Expected oldest last, got '%s'", results[4].Text)
		}
	})

	t.Run("Backend Filter", func(t *testing.T) {
		results, err := store.GetTranscripts(TranscriptQuery{Backend: "remote"})
		if err != nil {
			t.Fatalf("Failed to query transcripts: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("Expected 2 remote transcripts, got %d", len(results))
		}
		for _, tr := range results {
			if tr.Backend != "remote" {
				t.Errorf("Expected backend 'remote', got '%s'", tr.Backend)
			}
		}
	})

	t.Run("Since Filter", func(t *testing.T) {
		since := time.Now().UTC().Truncate(time.Second).Add(-time.Hour).Add(25 * time.Second)
		results, err := store.GetTranscripts(TranscriptQuery{Since: &since})
		if err != nil {
			t.Fatalf("Failed to query transcripts: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("Expected 2 transcripts since cutoff, got %d", len(results))
		}
	})

	t.Run("Limit And Offset", func(t *testing.T) {
		results, err := store.GetTranscripts(TranscriptQuery{Limit: 2, Offset: 1})
		if err != nil {
			t.Fatalf("Failed to query transcripts: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("Expected 2 transcripts, got %d", len(results))
		}
		if results[0].Text != "weather report for today" {
			t.Errorf("Expected second-newest first, got '%s'", results[0].Text)
		}
	})

	t.Run("Offset Without Limit", func(t *testing.T) {
		// Offset only applies alongside a limit; on its own it must not
		// produce broken SQL
		results, err := store.GetTranscripts(TranscriptQuery{Offset: 1})
		if err != nil {
			t.Fatalf("Failed to query transcripts: %v", err)
		}
		if len(results) != 5 {
			t.Errorf("Expected all 5 transcripts, got %d", len(results))
		}
	})

	t.Run("Search Text", func(t *testing.T) {
		results, err := store.GetTranscripts(TranscriptQuery{SearchText: "lazy"})
		if err != nil {
			t.Fatalf("Failed to query transcripts: %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("Expected 1 match, got %d", len(results))
		}
		if results[0].Text != "jumps over the lazy dog" {
			t.Errorf("Unexpected match: '%s'", results[0].Text)
		}
	})

	t.Run("Search Escapes Wildcards", func(t *testing.T) {
		// A literal % must not act as a wildcard
		results, err := store.SearchTranscripts("100%", 10)
		if err != nil {
			t.Fatalf("Failed to search transcripts: %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("Expected 1 match for literal percent, got %d", len(results))
		}

		results, err = store.SearchTranscripts("10%", 10)
		if err != nil {
			t.Fatalf("Failed to search transcripts: %v", err)
		}
		if len(results) != 0 {
			t.Errorf("Expected 0 matches when percent is literal, got %d", len(results))
		}
	})

	t.Run("No Matches Returns Empty Slice", func(t *testing.T) {
		results, err := store.GetTranscripts(TranscriptQuery{SearchText: "zzz-nothing"})
		if err != nil {
			t.Fatalf("Failed to query transcripts: %v", err)
		}
		if results == nil {
			t.Error("Expected empty slice, got nil")
		}
		if len(results) != 0 {
			t.Errorf("Expected 0 matches, got %d", len(results))
		}
	})
}

func TestGetTranscript(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "speechd-queries-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	store := seedStore(t, tempDir)
	defer store.Close()

	t.Run("Missing ID", func(t *testing.T) {
		_, err := store.GetTranscript("no-such-id")
		if err != ErrNotFound {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Segments Are Non Nil", func(t *testing.T) {
		recent, err := store.GetRecentTranscripts(1)
		if err != nil {
			t.Fatalf("Failed to get recent transcripts: %v", err)
		}
		if len(recent) != 1 {
			t.Fatalf("Expected 1 transcript, got %d", len(recent))
		}

		got, err := store.GetTranscript(recent[0].ID)
		if err != nil {
			t.Fatalf("Failed to get transcript: %v", err)
		}
		if got.Segments == nil {
			t.Error("Expected non-nil segments slice for transcript without segments")
		}
	})
}

func TestGetStats(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "speechd-queries-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	store := seedStore(t, tempDir)
	defer store.Close()

	stats, err := store.GetStats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}

	if stats.TotalTranscripts != 5 {
		t.Errorf("Expected 5 total transcripts, got %d", stats.TotalTranscripts)
	}
	if stats.PerBackend["mock"] != 2 {
		t.Errorf("Expected 2 mock transcripts, got %d", stats.PerBackend["mock"])
	}
	if stats.PerBackend["remote"] != 2 {
		t.Errorf("Expected 2 remote transcripts, got %d", stats.PerBackend["remote"])
	}
	if stats.PerBackend["apple"] != 1 {
		t.Errorf("Expected 1 apple transcript, got %d", stats.PerBackend["apple"])
	}
}

func TestDeleteOlderThan(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "speechd-queries-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	store := seedStore(t, tempDir)
	defer store.Close()

	cutoff := time.Now().UTC().Truncate(time.Second).Add(-time.Hour).Add(25 * time.Second)
	deleted, err := store.DeleteOlderThan(cutoff)
	if err != nil {
		t.Fatalf("Failed to delete old transcripts: %v", err)
	}
	if deleted != 3 {
		t.Errorf("Expected 3 deleted, got %d", deleted)
	}

	count, err := store.GetTranscriptCount()
	if err != nil {
		t.Fatalf("Failed to count transcripts: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 remaining, got %d", count)
	}
}
