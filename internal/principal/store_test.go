package principal

import (
	"path/filepath"
	"testing"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := tempStore(t)

	p, err := s.Create(KindHuman, "Dana")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.ID == "" {
		t.Fatal("expected non-empty id")
	}
	if !p.Active {
		t.Fatal("new principal should be active")
	}

	got, err := s.Get(p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Kind != KindHuman || got.DisplayName != "Dana" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestCreateRejectsUnknownKind(t *testing.T) {
	s := tempStore(t)

	if _, err := s.Create(Kind("robot"), "nope"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestDeactivate(t *testing.T) {
	s := tempStore(t)

	p, err := s.Create(KindAgent, "assistant")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !s.IsActive(p.ID) {
		t.Fatal("expected active")
	}

	if err := s.Deactivate(p.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if s.IsActive(p.ID) {
		t.Fatal("expected inactive after deactivate")
	}

	// Row survives deactivation
	got, err := s.Get(p.ID)
	if err != nil {
		t.Fatalf("Get after deactivate: %v", err)
	}
	if got.Active {
		t.Fatal("expected Active=false")
	}
}

func TestDeactivateMissing(t *testing.T) {
	s := tempStore(t)
	if err := s.Deactivate("no-such-id"); err == nil {
		t.Fatal("expected error for missing principal")
	}
}

func TestIsActiveFailsClosed(t *testing.T) {
	s := tempStore(t)
	if s.IsActive("no-such-id") {
		t.Fatal("unknown principal must report inactive")
	}
}

func TestList(t *testing.T) {
	s := tempStore(t)
	if _, err := s.Create(KindHuman, "a"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create(KindGroup, "family"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	all, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 principals, got %d", len(all))
	}
}
