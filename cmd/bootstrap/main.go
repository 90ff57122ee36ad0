package main

import (
	"fmt"
	"log"
	"os"

	"github.com/shopspring/decimal"

	"github.com/lucenlabs/aria/autonomy-gate/internal/delegation"
	"github.com/lucenlabs/aria/autonomy-gate/internal/principal"
	"github.com/lucenlabs/aria/autonomy-gate/internal/registry"
)

const defaultRegistry = `tools:
  - tool_id: calendar_read
    effect_class: read_only
    scope: calendar
  - tool_id: set_reminder
    effect_class: ephemeral
    scope: reminders
  - tool_id: draft_reply
    effect_class: draft
    scope: email
  - tool_id: send_email
    effect_class: writes_required
    confidence_floor: 0.75
    scope: email
  - tool_id: quick_order
    effect_class: ephemeral
    scope: shopping
  - tool_id: place_order
    effect_class: writes_required
    confidence_floor: 0.8
    scope: shopping
`

// #region main
func main() {
	dbPath := envOr("GATE_DB", "autonomy_gate.db")
	registryPath := envOr("GATE_REGISTRY", "tools.yaml")

	fmt.Println("=== Gate Bootstrap Tool ===")
	fmt.Printf("  DB: %s | Registry: %s\n", dbPath, registryPath)

	// Write the starter registry unless one already exists
	if _, err := os.Stat(registryPath); os.IsNotExist(err) {
		if err := os.WriteFile(registryPath, []byte(defaultRegistry), 0o644); err != nil {
			log.Fatalf("write registry: %v", err)
		}
		fmt.Printf("  Wrote starter registry to %s\n", registryPath)
	} else {
		fmt.Printf("  Registry %s already exists, leaving it alone\n", registryPath)
	}

	reg, err := registry.Load(registryPath)
	if err != nil {
		log.Fatalf("registry is not valid: %v", err)
	}
	fmt.Printf("  Registry validates: %d tools\n", reg.Len())

	store, err := principal.NewStore(dbPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	graph, err := delegation.NewGraph(store.DB())
	if err != nil {
		log.Fatalf("failed to init delegation graph: %v", err)
	}

	// Seed a user and an assistant agent
	fmt.Println("\n--- Principals ---")
	user, err := store.Create(principal.KindHuman, "Demo User")
	if err != nil {
		log.Fatalf("create user: %v", err)
	}
	fmt.Printf("  user:  %s\n", user.ID)

	agent, err := store.Create(principal.KindAgent, "Assistant")
	if err != nil {
		log.Fatalf("create agent: %v", err)
	}
	fmt.Printf("  agent: %s\n", agent.ID)

	// Seed one low-risk delegation so the silent path is demonstrable
	fmt.Println("\n--- Delegations ---")
	calendarEdge, err := graph.Grant(user.ID, agent.ID, "calendar", delegation.Constraints{})
	if err != nil {
		log.Fatalf("grant calendar: %v", err)
	}
	fmt.Printf("  %s: user -> agent on calendar (no limits)\n", calendarEdge.ID)

	shoppingEdge, err := graph.Grant(user.ID, agent.ID, "shopping", delegation.Constraints{
		MaxAmount: decimal.NewFromInt(25),
		MaxPerDay: 3,
	})
	if err != nil {
		log.Fatalf("grant shopping: %v", err)
	}
	fmt.Printf("  %s: user -> agent on shopping (max $25, 3/day)\n", shoppingEdge.ID)

	fmt.Println("\n=== Bootstrap Complete ===")
	fmt.Println("Run the gatekeeper with GATE_SIGNING_KEY set, then try:")
	fmt.Printf("  request %s %s calendar_read\n", user.ID, agent.ID)
	fmt.Printf("  confirm %s %s send_email\n", user.ID, agent.ID)
}

// #endregion main

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
