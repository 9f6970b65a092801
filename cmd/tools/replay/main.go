// Replay checks run determinism. Given two audit JSONL files it
// verifies they describe the same run; given a config and an intent
// list it executes the intents twice against independently built
// engines and compares every observable output.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/audit"
	"main/internal/gov"
	"main/internal/ledger"
	"main/internal/ops"
	"main/internal/order"
	"main/internal/pipeline"
	"main/internal/schema"
	"main/internal/venue"
)

func main() {
	fileA := flag.String("a", "", "First audit JSONL file")
	fileB := flag.String("b", "", "Second audit JSONL file")
	configPath := flag.String("config", "", "Path to JSON config (replay mode)")
	intentsPath := flag.String("intents", "", "Path to JSON intent list (replay mode)")
	runID := flag.String("run-id", "replay-check", "Run id shared by both replay engines")
	simTime := flag.String("sim-time", "2025-01-01T00:00:00Z", "Fixed simulation start time, RFC3339")
	flag.Parse()

	switch {
	case *fileA != "" && *fileB != "":
		if err := compareFiles(*fileA, *fileB); err != nil {
			log.Fatalf("audit streams diverge: %v", err)
		}
		logs.Info("audit streams match")
	case *configPath != "" && *intentsPath != "":
		if err := replayTwice(*configPath, *intentsPath, *runID, *simTime); err != nil {
			log.Fatalf("replay mismatch: %v", err)
		}
		logs.Info("replay is deterministic")
	default:
		log.Fatalf("usage: -a FILE -b FILE, or -config FILE -intents FILE")
	}
}

func compareFiles(pathA, pathB string) error {
	a, err := audit.ReadFile(pathA)
	if err != nil {
		return fmt.Errorf("read %s: %w", pathA, err)
	}
	b, err := audit.ReadFile(pathB)
	if err != nil {
		return fmt.Errorf("read %s: %w", pathB, err)
	}
	return audit.Compare(a, b)
}

type runOutput struct {
	entries  []schema.AuditEntry
	states   map[string]schema.OrderState
	snapshot []byte
}

func replayTwice(configPath, intentsPath, runID, simTime string) error {
	start, err := time.Parse(time.RFC3339, simTime)
	if err != nil {
		return fmt.Errorf("bad -sim-time: %w", err)
	}
	data, err := os.ReadFile(intentsPath)
	if err != nil {
		return err
	}
	var intents []pipeline.OrderIntent
	if err := json.Unmarshal(data, &intents); err != nil {
		return fmt.Errorf("parse intents: %w", err)
	}

	first, err := runOnce(configPath, runID, start.UTC(), intents)
	if err != nil {
		return err
	}
	second, err := runOnce(configPath, runID, start.UTC(), intents)
	if err != nil {
		return err
	}

	if err := audit.Compare(first.entries, second.entries); err != nil {
		return err
	}
	if len(first.states) != len(second.states) {
		return fmt.Errorf("order count %d vs %d", len(first.states), len(second.states))
	}
	for id, state := range first.states {
		if second.states[id] != state {
			return fmt.Errorf("order %s: state %s vs %s", id, state, second.states[id])
		}
	}
	if string(first.snapshot) != string(second.snapshot) {
		return fmt.Errorf("ledger snapshots differ")
	}
	return nil
}

// runOnce builds a fresh engine and executes the intents. Every run
// gets its own fixed clock pinned to the same start, so two calls see
// identical time.
func runOnce(configPath, runID string, start time.Time, intents []pipeline.OrderIntent) (runOutput, error) {
	loaded, err := ops.Load(configPath)
	if err != nil {
		return runOutput{}, fmt.Errorf("load config: %w", err)
	}

	clock := schema.NewFixedClock(start, time.Millisecond)
	machine := order.NewMachine(clock, nil)
	book := ledger.NewEngine(clock, loaded.Registry)
	if err := book.OpenCash(loaded.OpeningCash); err != nil {
		return runOutput{}, err
	}
	auditLog := audit.NewLog(clock, runID, nil)

	paper := venue.NewPaper(venue.PaperConfig{FeeBps: loaded.FeeBps}, clock, loaded.Registry)
	router := venue.NewRouter()
	if err := router.Register(schema.ExecModePaper, paper); err != nil {
		return runOutput{}, err
	}
	if err := router.Register(schema.ExecModeShadow, venue.NewShadow(clock)); err != nil {
		return runOutput{}, err
	}
	if err := router.Register(schema.ExecModeTestnet, venue.NewTestnet(clock, paper, nil)); err != nil {
		return runOutput{}, err
	}

	orch, err := pipeline.NewOrchestrator(loaded.Pipeline, runID, loaded.SessionID, pipeline.Deps{
		Clock:    clock,
		Registry: loaded.Registry,
		Orders:   machine,
		Ledger:   book,
		Audit:    auditLog,
		Router:   router,
		Gate:     gov.New(false, "", ""),
	})
	if err != nil {
		return runOutput{}, err
	}

	ctx := context.Background()
	for _, intent := range intents {
		if _, err := orch.Submit(ctx, intent); err != nil {
			return runOutput{}, fmt.Errorf("intent %s: %w", intent.IntentID, err)
		}
	}
	if err := book.CheckInvariants(); err != nil {
		return runOutput{}, err
	}

	snapshot, err := book.ExportSnapshotJSON(start, marksFrom(loaded.Registry))
	if err != nil {
		return runOutput{}, err
	}
	return runOutput{
		entries:  auditLog.Entries(),
		states:   machine.States(),
		snapshot: snapshot,
	}, nil
}

func marksFrom(registry *schema.Registry) map[string]decimal.Decimal {
	marks := make(map[string]decimal.Decimal)
	for i := 0; i < registry.SymbolCount(); i++ {
		sym, _ := registry.SymbolAt(i)
		if sym.MarkPrice.IsPositive() {
			marks[sym.Name] = sym.MarkPrice
		}
	}
	return marks
}
