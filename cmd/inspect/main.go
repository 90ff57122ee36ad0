package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/lucenlabs/aria/autonomy-gate/internal/audit"
	"github.com/lucenlabs/aria/autonomy-gate/internal/delegation"
	"github.com/lucenlabs/aria/autonomy-gate/internal/principal"
	"github.com/lucenlabs/aria/autonomy-gate/internal/readiness"
	"github.com/lucenlabs/aria/autonomy-gate/internal/trust"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to autonomy_gate.db")
	last := flag.Int("last", 20, "show N most recent audit entries")
	trustMode := flag.Bool("trust", false, "show trust profiles instead of audit log")
	tokenMode := flag.Bool("tokens", false, "show execution tokens instead of audit log")
	edgesFor := flag.String("edges", "", "show delegation edges touching one principal")
	candidatesFor := flag.String("candidates", "", "show readiness candidates for one user")
	turn := flag.String("turn", "", "filter tokens to one turn")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/autonomy_gate.db [--last N] [--trust] [--tokens [--turn id]] [--edges principal] [--candidates user] [--json]")
		os.Exit(2)
	}

	store, err := principal.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()
	db := store.DB()

	switch {
	case *trustMode:
		err = runTrustMode(db, *jsonOut)
	case *tokenMode:
		err = runTokenMode(db, *turn, *jsonOut)
	case *edgesFor != "":
		err = runEdgesMode(db, *edgesFor, *jsonOut)
	case *candidatesFor != "":
		err = runCandidatesMode(db, *candidatesFor, *jsonOut)
	default:
		err = runAuditMode(db, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region audit-mode

func runAuditMode(db *sql.DB, last int, jsonOut bool) error {
	if err := audit.Init(db); err != nil {
		return err
	}
	entries, err := audit.Recent(db, last)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no audit entries found")
		return nil
	}
	if jsonOut {
		return printJSON(entries)
	}

	fmt.Printf("%-20s  %-10s  %-14s  %-22s  %5s  %-9s  %s\n",
		"Time", "Principal", "Verdict", "Decision", "Score", "Token", "Tool")
	for _, e := range entries {
		fmt.Printf("%-20s  %-10s  %-14s  %-22s  %5.2f  %-9s  %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			shortID(e.PrincipalID), orDash(e.Verdict), e.Decision, e.Score,
			shortID(e.TokenID), e.ToolID)
	}
	return nil
}

// #endregion audit-mode

// #region trust-mode

func runTrustMode(db *sql.DB, jsonOut bool) error {
	store, err := trust.NewStore(db)
	if err != nil {
		return err
	}
	profiles, err := store.Profiles()
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		fmt.Fprintln(os.Stderr, "no trust profiles found")
		return nil
	}
	if jsonOut {
		return printJSON(profiles)
	}

	fmt.Printf("%-36s  %-16s  %5s  %s\n", "Principal", "Domain", "Score", "Updated")
	for _, p := range profiles {
		fmt.Printf("%-36s  %-16s  %5.2f  %s\n",
			p.PrincipalID, p.Domain, p.Score, p.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// #endregion trust-mode

// #region token-mode

type tokenRow struct {
	ID             string `json:"id"`
	PrincipalID    string `json:"principal_id"`
	IntentType     string `json:"intent_type"`
	State          string `json:"state"`
	IssuedAt       string `json:"issued_at"`
	ExpiresAt      string `json:"expires_at"`
	ConfirmationID string `json:"confirmation_id,omitempty"`
	TurnID         string `json:"turn_id,omitempty"`
}

func runTokenMode(db *sql.DB, turn string, jsonOut bool) error {
	query := `SELECT id, principal_id, intent_type, state, issued_at, expires_at, confirmation_id, turn_id
	          FROM execution_tokens`
	var args []interface{}
	if turn != "" {
		query += ` WHERE turn_id = ?`
		args = append(args, turn)
	}
	query += ` ORDER BY issued_at DESC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	var out []tokenRow
	for rows.Next() {
		var r tokenRow
		var confirmation sql.NullString
		if err := rows.Scan(&r.ID, &r.PrincipalID, &r.IntentType, &r.State,
			&r.IssuedAt, &r.ExpiresAt, &confirmation, &r.TurnID); err != nil {
			return fmt.Errorf("scan token: %w", err)
		}
		r.ConfirmationID = confirmation.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(out) == 0 {
		fmt.Fprintln(os.Stderr, "no tokens found")
		return nil
	}
	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("%-9s  %-9s  %-18s  %-9s  %-9s  %-9s  %s\n",
		"Token", "Principal", "Intent", "State", "Confirm", "Turn", "Issued")
	for _, r := range out {
		fmt.Printf("%-9s  %-9s  %-18s  %-9s  %-9s  %-9s  %s\n",
			shortID(r.ID), shortID(r.PrincipalID), r.IntentType, r.State,
			shortID(r.ConfirmationID), r.TurnID, r.IssuedAt)
	}
	return nil
}

// #endregion token-mode

// #region edges-mode

func runEdgesMode(db *sql.DB, principalID string, jsonOut bool) error {
	graph, err := delegation.NewGraph(db)
	if err != nil {
		return err
	}
	edges, err := graph.EdgesFor(principalID)
	if err != nil {
		return err
	}
	if len(edges) == 0 {
		fmt.Fprintln(os.Stderr, "no edges found")
		return nil
	}
	if jsonOut {
		return printJSON(edges)
	}

	fmt.Printf("%-9s  %-9s  %-9s  %-16s  %-8s  %s\n",
		"Edge", "From", "To", "Scope", "State", "Created")
	for _, e := range edges {
		state := "active"
		if e.RevokedAt != nil {
			state = "revoked"
		}
		fmt.Printf("%-9s  %-9s  %-9s  %-16s  %-8s  %s\n",
			shortID(e.ID), shortID(e.FromPrincipal), shortID(e.ToPrincipal),
			e.Scope, state, e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// #endregion edges-mode

// #region candidates-mode

func runCandidatesMode(db *sql.DB, userID string, jsonOut bool) error {
	graph, err := delegation.NewGraph(db)
	if err != nil {
		return err
	}
	engine, err := readiness.NewEngine(db, graph, readiness.DefaultConfig(), nil)
	if err != nil {
		return err
	}
	candidates, err := engine.ForUser(userID)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		fmt.Fprintln(os.Stderr, "no candidates found")
		return nil
	}
	if jsonOut {
		return printJSON(candidates)
	}

	fmt.Printf("%-9s  %-9s  %-16s  %7s  %5s  %s\n",
		"ID", "Target", "Scope", "Support", "Shown", "Status")
	for _, c := range candidates {
		status := "open"
		switch {
		case c.AcceptedAt != nil:
			status = "accepted"
		case c.DismissedAt != nil:
			status = "dismissed"
		}
		fmt.Printf("%-9s  %-9s  %-16s  %7.1f  %5d  %s\n",
			shortID(c.ID), shortID(c.TargetPrincipal), c.Scope, c.Support, c.ShownCount, status)
	}
	return nil
}

// #endregion candidates-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "—"
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

// #endregion output
