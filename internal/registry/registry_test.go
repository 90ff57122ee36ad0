package registry

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
tools:
  - tool_id: calendar_read
    effect_class: read_only
    scope: calendar.read
  - tool_id: send_email
    effect_class: writes_required
    confidence_floor: 0.75
    scope: messaging.send
  - tool_id: draft_reply
    effect_class: draft
    scope: messaging.draft
`

func TestParseAndLookup(t *testing.T) {
	r, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r.Len() != 3 {
		t.Fatalf("expected 3 tools, got %d", r.Len())
	}

	e, ok := r.Lookup("send_email")
	if !ok {
		t.Fatal("expected send_email present")
	}
	if e.EffectClass != EffectWritesRequired {
		t.Fatalf("expected writes_required, got %s", e.EffectClass)
	}
	if e.ConfidenceFloor != 0.75 {
		t.Fatalf("expected floor 0.75, got %.2f", e.ConfidenceFloor)
	}
	if e.Scope != "messaging.send" {
		t.Fatalf("unexpected scope %s", e.Scope)
	}
}

func TestLookupUnknownTool(t *testing.T) {
	r, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := r.Lookup("rm_rf"); ok {
		t.Fatal("unknown tool must not resolve")
	}
}

func TestParseRejectsUnknownEffectClass(t *testing.T) {
	bad := `
tools:
  - tool_id: weird
    effect_class: destructive
    scope: x.y
`
	if _, err := Parse([]byte(bad)); err == nil {
		t.Fatal("expected error for unknown effect class")
	}
}

func TestParseRejectsDuplicates(t *testing.T) {
	bad := `
tools:
  - tool_id: a
    effect_class: read_only
    scope: x.a
  - tool_id: a
    effect_class: draft
    scope: x.a
`
	if _, err := Parse([]byte(bad)); err == nil {
		t.Fatal("expected error for duplicate tool_id")
	}
}

func TestParseRejectsBadFloor(t *testing.T) {
	bad := `
tools:
  - tool_id: a
    effect_class: read_only
    confidence_floor: 1.5
    scope: x.a
`
	if _, err := Parse([]byte(bad)); err == nil {
		t.Fatal("expected error for floor out of range")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := r.Lookup("calendar_read"); !ok {
		t.Fatal("expected calendar_read present")
	}
}

func TestBaseScoreOrdering(t *testing.T) {
	classes := []EffectClass{EffectReadOnly, EffectEphemeral, EffectDraft, EffectWritesRequired}
	want := []float64{1.0, 0.9, 0.8, 0.7}
	for i, c := range classes {
		if got := c.BaseScore(); got != want[i] {
			t.Fatalf("%s: expected %.2f, got %.2f", c, want[i], got)
		}
	}
	if EffectClass("bogus").BaseScore() != 0 {
		t.Fatal("unknown class must score 0")
	}
}
