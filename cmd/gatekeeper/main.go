package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lucenlabs/aria/autonomy-gate/internal/agency"
	"github.com/lucenlabs/aria/autonomy-gate/internal/confidence"
	"github.com/lucenlabs/aria/autonomy-gate/internal/config"
	"github.com/lucenlabs/aria/autonomy-gate/internal/delegation"
	"github.com/lucenlabs/aria/autonomy-gate/internal/gatekeeper"
	"github.com/lucenlabs/aria/autonomy-gate/internal/outcome"
	"github.com/lucenlabs/aria/autonomy-gate/internal/principal"
	"github.com/lucenlabs/aria/autonomy-gate/internal/readiness"
	"github.com/lucenlabs/aria/autonomy-gate/internal/registry"
	"github.com/lucenlabs/aria/autonomy-gate/internal/token"
	"github.com/lucenlabs/aria/autonomy-gate/internal/trust"
)

// #region main
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	store, err := principal.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()
	db := store.DB()

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		log.Fatalf("failed to load tool registry: %v", err)
	}

	trustStore, err := trust.NewStore(db)
	if err != nil {
		log.Fatalf("failed to init trust store: %v", err)
	}
	graph, err := delegation.NewGraph(db)
	if err != nil {
		log.Fatalf("failed to init delegation graph: %v", err)
	}
	tokens, err := token.NewStore(db, cfg.SigningKey, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("failed to init token store: %v", err)
	}

	gate := confidence.NewGate(reg, trustStore, confidence.DefaultConfig())
	gk, err := gatekeeper.New(gate, graph, tokens, store, db, logger)
	if err != nil {
		log.Fatalf("failed to init gatekeeper: %v", err)
	}
	recorder := outcome.NewRecorder(trustStore, logger)
	validator := agency.NewValidator(tokens)
	engine, err := readiness.NewEngine(db, graph, readiness.Config{
		MinSupport: cfg.CandidateMinSupport,
		MaxShown:   cfg.CandidateMaxShown,
		Cooldown:   cfg.CandidateCooldown,
	}, logger)
	if err != nil {
		log.Fatalf("failed to init readiness engine: %v", err)
	}

	fmt.Println("Autonomy gate ready.")
	fmt.Printf("  DB: %s | Tools: %d | Token TTL: %s\n", cfg.DBPath, reg.Len(), cfg.TokenTTL)
	fmt.Println("Type 'help' for commands, 'quit' to exit:")

	repl := &repl{
		store:     store,
		gk:        gk,
		graph:     graph,
		trust:     trustStore,
		recorder:  recorder,
		validator: validator,
		engine:    engine,
	}

	scanner := bufio.NewScanner(os.Stdin)
	turnNum := 0
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		turnNum++
		repl.turnID = fmt.Sprintf("turn-%d", turnNum)
		if err := repl.dispatch(line); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

// #endregion main

// #region repl
type repl struct {
	store     *principal.Store
	gk        *gatekeeper.Gatekeeper
	graph     *delegation.Graph
	trust     *trust.Store
	recorder  *outcome.Recorder
	validator *agency.Validator
	engine    *readiness.Engine
	turnID    string
}

func (r *repl) dispatch(line string) error {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		printHelp()
		return nil
	case "principal":
		return r.cmdPrincipal(args)
	case "principals":
		return r.cmdPrincipals()
	case "request":
		return r.cmdRequest(args, false)
	case "confirm":
		return r.cmdRequest(args, true)
	case "verify":
		return r.cmdVerify(args)
	case "cancel":
		return r.cmdCancel(args)
	case "grant":
		return r.cmdGrant(args)
	case "revoke":
		return r.cmdRevoke(args)
	case "edges":
		return r.cmdEdges(args)
	case "outcome":
		return r.cmdOutcome(args)
	case "trust":
		return r.cmdTrust(args)
	case "say":
		return r.cmdSay(args)
	case "observe":
		return r.cmdObserve(args)
	case "candidates":
		return r.cmdCandidates(args)
	case "accept":
		return r.cmdAccept(args)
	case "dismiss":
		return r.cmdDismiss(args)
	default:
		return fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
}

func printHelp() {
	fmt.Println(`commands:
  principal <human|agent|group> <name>        create a principal
  principals                                  list principals
  request <user> <actor> <tool> [amount]      ask for a token (no confirmation)
  confirm <user> <actor> <tool> [amount]      ask with a fresh confirmation attached
  verify <token-id> <intent>                  consume a token
  cancel <token-id>                           revoke an issued token
  grant <from> <to> <scope> [max-amount]      add a delegation edge
  revoke <edge-id>                            revoke a delegation edge
  edges <principal>                           list edges touching a principal
  outcome <principal> <domain> <ok|slow|fail|interrupt>  record an action outcome
  trust <principal> <domain>                  show trust score and history
  say <turn-id> <text...>                     run the agency validator on text
  observe <user> <agent> <scope>              feed one recurring-pattern signal
  candidates <user>                           scan surfaceable candidates
  accept <candidate-id>                       accept a candidate into an edge
  dismiss <candidate-id>                      dismiss a candidate`)
}

// #endregion repl

// #region principal-cmds
func (r *repl) cmdPrincipal(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: principal <human|agent|group> <name>")
	}
	p, err := r.store.Create(principal.Kind(args[0]), strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Printf("created %s %s (%s)\n", p.Kind, p.DisplayName, p.ID)
	return nil
}

func (r *repl) cmdPrincipals() error {
	all, err := r.store.List()
	if err != nil {
		return err
	}
	for _, p := range all {
		state := "active"
		if !p.Active {
			state = "inactive"
		}
		fmt.Printf("  %-36s  %-6s  %-8s  %s\n", p.ID, p.Kind, state, p.DisplayName)
	}
	return nil
}

// #endregion principal-cmds

// #region gate-cmds
func (r *repl) cmdRequest(args []string, confirmed bool) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: request <user> <actor> <tool> [amount]")
	}
	req := gatekeeper.Request{
		UserID:  args[0],
		ActorID: args[1],
		ToolID:  args[2],
		TurnID:  r.turnID,
	}
	if len(args) > 3 {
		amount, err := decimal.NewFromString(args[3])
		if err != nil {
			return fmt.Errorf("bad amount %q: %w", args[3], err)
		}
		req.Amount = amount
	}
	if confirmed {
		req.Confirmation = &gatekeeper.Confirmation{
			ID:          uuid.New().String(),
			ConfirmedBy: req.UserID,
		}
	}

	tok, err := r.gk.RequestToken(req)
	if err != nil {
		return err
	}
	fmt.Printf("token %s issued for intent %q, expires %s\n",
		tok.ID, tok.IntentType, tok.ExpiresAt.Format("15:04:05"))
	return nil
}

func (r *repl) cmdVerify(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: verify <token-id> <intent>")
	}
	if r.gk.Verify(args[0], args[1]) {
		fmt.Println("consumed: proceed with the action")
	} else {
		fmt.Println("refused: do not act")
	}
	return nil
}

func (r *repl) cmdCancel(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: cancel <token-id>")
	}
	if err := r.gk.Cancel(args[0]); err != nil {
		return err
	}
	fmt.Println("token revoked")
	return nil
}

// #endregion gate-cmds

// #region graph-cmds
func (r *repl) cmdGrant(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: grant <from> <to> <scope> [max-amount]")
	}
	var cons delegation.Constraints
	if len(args) > 3 {
		amount, err := decimal.NewFromString(args[3])
		if err != nil {
			return fmt.Errorf("bad max amount %q: %w", args[3], err)
		}
		cons.MaxAmount = amount
	}
	edge, err := r.graph.Grant(args[0], args[1], args[2], cons)
	if err != nil {
		return err
	}
	fmt.Printf("edge %s: %s -> %s on %s\n", edge.ID, edge.FromPrincipal, edge.ToPrincipal, edge.Scope)
	return nil
}

func (r *repl) cmdRevoke(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: revoke <edge-id>")
	}
	if err := r.graph.Revoke(args[0]); err != nil {
		return err
	}
	fmt.Println("edge revoked")
	return nil
}

func (r *repl) cmdEdges(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: edges <principal>")
	}
	edges, err := r.graph.EdgesFor(args[0])
	if err != nil {
		return err
	}
	for _, e := range edges {
		state := "active"
		if e.RevokedAt != nil {
			state = "revoked"
		}
		fmt.Printf("  %-36s  %s -> %s  scope=%s  %s\n", e.ID, e.FromPrincipal, e.ToPrincipal, e.Scope, state)
	}
	return nil
}

// #endregion graph-cmds

// #region trust-cmds
func (r *repl) cmdOutcome(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: outcome <principal> <domain> <ok|slow|fail|interrupt>")
	}
	var o outcome.Outcome
	switch args[2] {
	case "ok":
		o = outcome.Outcome{Success: true}
	case "slow":
		o = outcome.Outcome{Success: true, DurationMS: 5000, ExpectedDurationMS: 1000}
	case "fail":
		o = outcome.Outcome{Success: false, Error: "action failed"}
	case "interrupt":
		o = outcome.Outcome{InterruptedByUser: true}
	default:
		return fmt.Errorf("unknown outcome %q", args[2])
	}
	adj, after, err := r.recorder.Record(args[0], args[1], o)
	if err != nil {
		return err
	}
	fmt.Printf("delta %+.2f (%s), trust now %.2f\n", adj.Delta, adj.Reason, after)
	return nil
}

func (r *repl) cmdTrust(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: trust <principal> <domain>")
	}
	score, err := r.trust.Get(args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("trust %.2f\n", score)

	history, err := r.trust.History(args[0], args[1], 10)
	if err != nil {
		return err
	}
	for _, rec := range history {
		fmt.Printf("  %+.2f -> %.2f  %s  (%s)\n",
			rec.Delta, rec.ScoreAfter, rec.Reason, rec.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// #endregion trust-cmds

// #region agency-cmds
func (r *repl) cmdSay(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: say <turn-id> <text...>")
	}
	text := strings.Join(args[1:], " ")
	if err := r.validator.ValidateTurn(text, args[0]); err != nil {
		return err
	}
	fmt.Println("text ok")
	return nil
}

// #endregion agency-cmds

// #region readiness-cmds
func (r *repl) cmdObserve(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: observe <user> <agent> <scope>")
	}
	if err := r.engine.Observe(args[0], args[1], args[2], delegation.Constraints{}, 1.0); err != nil {
		return err
	}
	fmt.Println("observed")
	return nil
}

func (r *repl) cmdCandidates(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: candidates <user>")
	}
	candidates, err := r.engine.Scan(args[0])
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		fmt.Println("nothing to surface")
		return nil
	}
	for _, c := range candidates {
		fmt.Printf("  %-36s  %s -> %s  scope=%s  support=%.1f  shown=%d\n",
			c.ID, c.ActorPrincipal, c.TargetPrincipal, c.Scope, c.Support, c.ShownCount)
	}
	return nil
}

func (r *repl) cmdAccept(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: accept <candidate-id>")
	}
	edge, err := r.engine.Accept(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("edge %s created: %s -> %s on %s\n",
		edge.ID, edge.FromPrincipal, edge.ToPrincipal, edge.Scope)
	return nil
}

func (r *repl) cmdDismiss(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: dismiss <candidate-id>")
	}
	if err := r.engine.Dismiss(args[0]); err != nil {
		return err
	}
	fmt.Println("dismissed")
	return nil
}

// #endregion readiness-cmds
