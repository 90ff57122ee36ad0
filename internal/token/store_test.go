package token

import (
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func tempStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	// One connection keeps concurrent consume attempts off SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	s, err := NewStore(db, []byte("test-signing-key"), ttl)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestIssueAndConsumeOnce(t *testing.T) {
	s := tempStore(t, time.Minute)

	tok, err := s.Issue("user-1", "send_email", "confirm-1", "turn-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if tok.State != StateIssued {
		t.Fatalf("expected issued, got %s", tok.State)
	}
	if tok.Signed == "" {
		t.Fatal("expected signed wire form")
	}

	if !s.Consume(tok.ID, "send_email") {
		t.Fatal("first consume should succeed")
	}
	// Idempotent-false-after-first: the same token never verifies twice.
	if s.Consume(tok.ID, "send_email") {
		t.Fatal("second consume must fail")
	}

	got, err := s.Get(tok.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != StateConsumed || got.ConsumedAt == nil {
		t.Fatalf("expected consumed with timestamp, got %+v", got)
	}
}

func TestConsumeWrongIntentFails(t *testing.T) {
	s := tempStore(t, time.Minute)

	tok, err := s.Issue("user-1", "send_email", "", "turn-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if s.Consume(tok.ID, "place_order") {
		t.Fatal("wrong intent must not consume")
	}
	// Token stays live for the right intent.
	if !s.Consume(tok.ID, "send_email") {
		t.Fatal("correct intent should still consume")
	}
}

func TestConsumeUnknownTokenFails(t *testing.T) {
	s := tempStore(t, time.Minute)
	if s.Consume("no-such-token", "send_email") {
		t.Fatal("unknown token must not consume")
	}
}

func TestExpiredTokenFails(t *testing.T) {
	s := tempStore(t, time.Millisecond)

	tok, err := s.Issue("user-1", "send_email", "", "turn-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if s.Consume(tok.ID, "send_email") {
		t.Fatal("expired token must not consume")
	}
	got, err := s.Get(tok.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != StateExpired {
		t.Fatalf("expected expired after refused consume, got %s", got.State)
	}
}

func TestExpiryStoredSecondPrecision(t *testing.T) {
	s := tempStore(t, time.Minute)

	tok, err := s.Issue("user-1", "send_email", "", "turn-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Sub-second precision would break the lexicographic expiry comparison
	// in Consume: nano format trims trailing zeros.
	var expires string
	if err := s.db.QueryRow(
		`SELECT expires_at FROM execution_tokens WHERE id = ?`, tok.ID,
	).Scan(&expires); err != nil {
		t.Fatalf("read expires_at: %v", err)
	}
	if strings.Contains(expires, ".") {
		t.Fatalf("expires_at %q carries sub-second precision", expires)
	}
	if !tok.ExpiresAt.Equal(tok.ExpiresAt.Truncate(time.Second)) {
		t.Fatalf("returned expiry %v not second-aligned", tok.ExpiresAt)
	}
}

func TestRevokedTokenFails(t *testing.T) {
	s := tempStore(t, time.Minute)

	tok, err := s.Issue("user-1", "send_email", "", "turn-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := s.Revoke(tok.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if s.Consume(tok.ID, "send_email") {
		t.Fatal("revoked token must not consume")
	}
	// Terminal states cannot be revoked again.
	if err := s.Revoke(tok.ID); err == nil {
		t.Fatal("revoking a terminal token must fail")
	}
}

func TestDuplicateConfirmationRejected(t *testing.T) {
	s := tempStore(t, time.Minute)

	if _, err := s.Issue("user-1", "send_email", "confirm-1", "turn-1"); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, err := s.Issue("user-1", "send_email", "confirm-1", "turn-1")
	if !errors.Is(err, ErrDuplicateConfirmation) {
		t.Fatalf("expected ErrDuplicateConfirmation, got %v", err)
	}
}

func TestDelegationTokensSkipConfirmationUniqueness(t *testing.T) {
	s := tempStore(t, time.Minute)

	// Two delegation-issued tokens (empty confirmation) must coexist.
	if _, err := s.Issue("user-1", "calendar_read", "", "turn-1"); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := s.Issue("user-1", "calendar_read", "", "turn-2"); err != nil {
		t.Fatalf("Issue second: %v", err)
	}
}

func TestConcurrentConsumeSingleWinner(t *testing.T) {
	s := tempStore(t, time.Minute)

	tok, err := s.Issue("user-1", "send_email", "", "turn-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]bool, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = s.Consume(tok.ID, "send_email")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, ok := range results {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning consume, got %d", wins)
	}
}

func TestConsumeSigned(t *testing.T) {
	s := tempStore(t, time.Minute)

	tok, err := s.Issue("user-1", "send_email", "", "turn-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if s.ConsumeSigned(tok.Signed, "place_order") {
		t.Fatal("wrong intent must not consume signed token")
	}
	if !s.ConsumeSigned(tok.Signed, "send_email") {
		t.Fatal("signed consume should succeed")
	}
	if s.ConsumeSigned(tok.Signed, "send_email") {
		t.Fatal("signed token must not consume twice")
	}
}

func TestConsumeSignedRejectsTamperedToken(t *testing.T) {
	s := tempStore(t, time.Minute)

	tok, err := s.Issue("user-1", "send_email", "", "turn-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	last := tok.Signed[len(tok.Signed)-1]
	flip := "A"
	if last == 'A' {
		flip = "B"
	}
	tampered := tok.Signed[:len(tok.Signed)-1] + flip
	if s.ConsumeSigned(tampered, "send_email") {
		t.Fatal("tampered signature must not consume")
	}
}

func TestConsumedIntentsByTurn(t *testing.T) {
	s := tempStore(t, time.Minute)

	a, _ := s.Issue("user-1", "send_email", "", "turn-9")
	b, _ := s.Issue("user-1", "calendar_read", "", "turn-9")
	if _, err := s.Issue("user-1", "place_order", "", "turn-9"); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	s.Consume(a.ID, "send_email")
	s.Consume(b.ID, "calendar_read")

	intents, err := s.ConsumedIntents("turn-9")
	if err != nil {
		t.Fatalf("ConsumedIntents: %v", err)
	}
	if len(intents) != 2 {
		t.Fatalf("expected 2 consumed intents, got %v", intents)
	}
}

func TestSweepExpired(t *testing.T) {
	s := tempStore(t, time.Millisecond)

	if _, err := s.Issue("user-1", "send_email", "", "turn-1"); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := s.Issue("user-1", "calendar_read", "", "turn-1"); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	n, err := s.SweepExpired()
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 swept, got %d", n)
	}
}
