package trust

import (
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	_ "modernc.org/sqlite"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestGetCreatesNeutralDefault(t *testing.T) {
	s := tempStore(t)

	score, err := s.Get("user-1", "messaging")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if score != DefaultScore {
		t.Fatalf("expected default %.2f, got %.2f", DefaultScore, score)
	}

	// Second read hits the persisted row, same value.
	again, err := s.Get("user-1", "messaging")
	if err != nil {
		t.Fatalf("Get again: %v", err)
	}
	if again != DefaultScore {
		t.Fatalf("expected %.2f, got %.2f", DefaultScore, again)
	}
}

func TestApplyClampsAndRecordsHistory(t *testing.T) {
	s := tempStore(t)

	after, err := s.Apply("user-1", "commerce", 0.8, "clean success streak")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if after != 1.0 {
		t.Fatalf("expected clamp to 1.0, got %.2f", after)
	}

	after, err = s.Apply("user-1", "commerce", -3.0, "interrupted")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if after != 0.0 {
		t.Fatalf("expected clamp to 0.0, got %.2f", after)
	}

	hist, err := s.History("user-1", "commerce", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(hist))
	}
	// Newest first
	if hist[0].Delta != -3.0 || hist[0].ScoreAfter != 0.0 {
		t.Fatalf("unexpected newest row: %+v", hist[0])
	}
	if hist[1].Reason != "clean success streak" {
		t.Fatalf("unexpected oldest row: %+v", hist[1])
	}
}

func TestApplyIsolatedPerDomain(t *testing.T) {
	s := tempStore(t)

	if _, err := s.Apply("user-1", "calendar", 0.1, "ok"); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	other, err := s.Get("user-1", "commerce")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if other != DefaultScore {
		t.Fatalf("commerce domain should stay neutral, got %.2f", other)
	}
}

func TestConcurrentApplyLosesNothing(t *testing.T) {
	s := tempStore(t)

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := s.Apply("user-1", "messaging", 0.01, "ok"); err != nil {
				t.Errorf("Apply: %v", err)
			}
		}()
	}
	wg.Wait()

	score, err := s.Get("user-1", "messaging")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := DefaultScore + float64(n)*0.01
	if score < want-0.0001 || score > want+0.0001 {
		t.Fatalf("expected %.4f after %d adjustments, got %.4f", want, n, score)
	}

	hist, err := s.History("user-1", "messaging", n+5)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != n {
		t.Fatalf("expected %d history rows, got %d", n, len(hist))
	}
}
