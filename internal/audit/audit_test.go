package audit

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func tempDB(t *testing.T) *sql.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := Init(db); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return db
}

func TestLogAndRecent(t *testing.T) {
	db := tempDB(t)

	entries := []Entry{
		{PrincipalID: "user-1", ToolID: "send_email", Verdict: "require_human", Score: 0.7, Decision: "confirmation_required"},
		{PrincipalID: "user-1", ToolID: "send_email", Verdict: "require_human", Score: 0.7, Decision: "token_issued", TokenID: "tok-1", TurnID: "turn-1"},
		{PrincipalID: "user-1", ActorID: "agent-1", ToolID: "calendar_read", Verdict: "allow", Score: 1.0, Decision: "auto_authorized", Reason: "auto-authorized via delegation"},
	}
	for _, e := range entries {
		if err := Log(db, e); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	got, err := Recent(db, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	// Newest first
	if got[0].Decision != "auto_authorized" || got[0].ActorID != "agent-1" {
		t.Fatalf("unexpected newest entry: %+v", got[0])
	}
	if got[1].TokenID != "tok-1" {
		t.Fatalf("expected token id round trip, got %+v", got[1])
	}
	if got[0].CreatedAt.IsZero() {
		t.Fatal("expected created_at set")
	}
}

func TestRecentLimit(t *testing.T) {
	db := tempDB(t)
	for i := 0; i < 5; i++ {
		if err := Log(db, Entry{PrincipalID: "u", ToolID: "t", Verdict: "deny", Decision: "denied"}); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}
	got, err := Recent(db, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2, got %d", len(got))
	}
}
