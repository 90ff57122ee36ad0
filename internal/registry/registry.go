package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// #region effect-class
// EffectClass orders gated capabilities by how hard their effects are to undo.
type EffectClass string

const (
	EffectReadOnly       EffectClass = "read_only"
	EffectEphemeral      EffectClass = "ephemeral"
	EffectDraft          EffectClass = "draft"
	EffectWritesRequired EffectClass = "writes_required"
)

// BaseScore returns the confidence base for an effect class. Reversible or
// non-persistent effects need less confidence than persistent writes.
func (e EffectClass) BaseScore() float64 {
	switch e {
	case EffectReadOnly:
		return 1.0
	case EffectEphemeral:
		return 0.9
	case EffectDraft:
		return 0.8
	case EffectWritesRequired:
		return 0.7
	}
	return 0
}

// Valid reports whether e is a known effect class.
func (e EffectClass) Valid() bool {
	switch e {
	case EffectReadOnly, EffectEphemeral, EffectDraft, EffectWritesRequired:
		return true
	}
	return false
}

// #endregion effect-class

// #region entry
// Entry describes one gated capability. Read-only at runtime; changes
// require a registry file update and restart.
type Entry struct {
	ToolID          string      `yaml:"tool_id"`
	EffectClass     EffectClass `yaml:"effect_class"`
	ConfidenceFloor float64     `yaml:"confidence_floor"`
	Scope           string      `yaml:"scope"`
}

// #endregion entry

// #region registry
// Registry is the validated allowlist of gated tools, keyed by tool ID.
// Tools not present here are never allowed.
type Registry struct {
	entries map[string]Entry
}

// registryFile is the on-disk YAML shape.
type registryFile struct {
	Tools []Entry `yaml:"tools"`
}

// Load reads and validates a registry YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return Parse(data)
}

// Parse validates raw registry YAML.
func Parse(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}

	entries := make(map[string]Entry, len(file.Tools))
	for _, e := range file.Tools {
		if e.ToolID == "" {
			return nil, fmt.Errorf("registry entry with empty tool_id")
		}
		if !e.EffectClass.Valid() {
			return nil, fmt.Errorf("tool %s: unknown effect class %q", e.ToolID, e.EffectClass)
		}
		if e.ConfidenceFloor < 0 || e.ConfidenceFloor > 1 {
			return nil, fmt.Errorf("tool %s: confidence floor %.2f out of [0,1]", e.ToolID, e.ConfidenceFloor)
		}
		if e.Scope == "" {
			return nil, fmt.Errorf("tool %s: empty scope", e.ToolID)
		}
		if _, dup := entries[e.ToolID]; dup {
			return nil, fmt.Errorf("duplicate tool_id %s", e.ToolID)
		}
		entries[e.ToolID] = e
	}
	return &Registry{entries: entries}, nil
}

// FromEntries builds a registry directly, validating each entry.
// Used by tests and the bootstrap command.
func FromEntries(tools []Entry) (*Registry, error) {
	var file registryFile
	file.Tools = tools
	data, err := yaml.Marshal(file)
	if err != nil {
		return nil, fmt.Errorf("marshal registry: %w", err)
	}
	return Parse(data)
}

// Lookup returns the entry for toolID. ok is false for unknown tools;
// callers must treat that as a hard deny.
func (r *Registry) Lookup(toolID string) (Entry, bool) {
	e, ok := r.entries[toolID]
	return e, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.entries)
}

// #endregion registry
