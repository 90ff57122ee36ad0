package outcome

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/lucenlabs/aria/autonomy-gate/internal/trust"
)

func TestInterruptBeatsFailure(t *testing.T) {
	interrupted := Evaluate(Outcome{Success: false, InterruptedByUser: true})
	failed := Evaluate(Outcome{Success: false})

	if interrupted.Delta >= failed.Delta {
		t.Fatalf("interrupt (%.2f) must be strictly more negative than failure (%.2f)",
			interrupted.Delta, failed.Delta)
	}
}

func TestInterruptWinsEvenOnSuccess(t *testing.T) {
	// A user who stops a "successful" action is still overriding it.
	adj := Evaluate(Outcome{Success: true, InterruptedByUser: true})
	if adj.Delta != deltaInterrupted {
		t.Fatalf("expected %.2f, got %.2f", deltaInterrupted, adj.Delta)
	}
}

func TestFailureModerateNegative(t *testing.T) {
	adj := Evaluate(Outcome{Success: false, Error: "smtp timeout"})
	if adj.Delta != deltaFailure {
		t.Fatalf("expected %.2f, got %.2f", deltaFailure, adj.Delta)
	}
	if adj.Reason == "action failed" {
		t.Fatal("expected error detail in reason")
	}
}

func TestSlowSuccessDampened(t *testing.T) {
	slow := Evaluate(Outcome{Success: true, DurationMS: 5000, ExpectedDurationMS: 2000})
	clean := Evaluate(Outcome{Success: true, DurationMS: 1500, ExpectedDurationMS: 2000})

	if slow.Delta != deltaSlowSuccess {
		t.Fatalf("expected %.2f for slow success, got %.2f", deltaSlowSuccess, slow.Delta)
	}
	if clean.Delta != deltaSuccess {
		t.Fatalf("expected %.2f for clean success, got %.2f", deltaSuccess, clean.Delta)
	}
	if slow.Delta >= clean.Delta {
		t.Fatal("slow success must earn less than clean success")
	}
}

func TestNoExpectationMeansCleanSuccess(t *testing.T) {
	adj := Evaluate(Outcome{Success: true, DurationMS: 60000})
	if adj.Delta != deltaSuccess {
		t.Fatalf("expected %.2f without expectation, got %.2f", deltaSuccess, adj.Delta)
	}
}

func TestRecorderAppliesToTrust(t *testing.T) {
	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	trustStore, err := trust.NewStore(db)
	if err != nil {
		t.Fatalf("trust.NewStore: %v", err)
	}
	rec := NewRecorder(trustStore, nil)

	adj, after, err := rec.Record("user-1", "messaging.send", Outcome{Success: true, InterruptedByUser: true})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if adj.Delta != deltaInterrupted {
		t.Fatalf("expected interrupt delta, got %.2f", adj.Delta)
	}
	if after != 0.0 {
		t.Fatalf("0.5 - 0.5 should clamp to 0.0, got %.2f", after)
	}

	hist, err := trustStore.History("user-1", "messaging.send", 5)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 || hist[0].Reason != "interrupted by user" {
		t.Fatalf("expected recorded adjustment, got %+v", hist)
	}
}
