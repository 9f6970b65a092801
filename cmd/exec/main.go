package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/archive"
	"main/internal/audit"
	"main/internal/gov"
	"main/internal/ledger"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/order"
	"main/internal/pipeline"
	"main/internal/recon"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/venue"
)

// Exit codes reported to the caller.
const (
	exitAccept       = 0
	exitReject       = 1
	exitInconclusive = 2
	exitError        = 3
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	intentsPath := flag.String("intents", "", "Path to JSON intent list")
	externalPath := flag.String("external", "", "Path to external snapshot JSON for reconciliation")
	auditPath := flag.String("audit", "", "Audit JSONL output (overrides config)")
	snapshotPath := flag.String("snapshot", "", "Ledger snapshot JSON output")
	runID := flag.String("run-id", "", "Run id (default: random)")
	simTime := flag.String("sim-time", "", "Fixed simulation start time, RFC3339 (default: wall clock)")
	flag.Parse()

	if *intentsPath == "" {
		log.Fatalf("missing -intents")
	}

	os.Exit(run(*configPath, *intentsPath, *externalPath, *auditPath, *snapshotPath, *runID, *simTime))
}

func run(configPath, intentsPath, externalPath, auditPath, snapshotPath, runID, simTime string) int {
	loaded, err := loadConfig(configPath)
	if err != nil {
		logs.Errorf("config load failed: %v", err)
		return exitError
	}

	if loaded.Profiling.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: profilingAppName(loaded),
			ServerAddress:   loaded.Profiling.ServerAddress,
			Logger:          emptyLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			logs.Errorf("pyroscope start failed: %v", err)
			return exitError
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	intents, err := loadIntents(intentsPath)
	if err != nil {
		logs.Errorf("intent load failed: %v", err)
		return exitError
	}

	var clock schema.Clock = schema.RealClock{}
	if simTime != "" {
		start, err := time.Parse(time.RFC3339, simTime)
		if err != nil {
			logs.Errorf("bad -sim-time: %v", err)
			return exitError
		}
		clock = schema.NewFixedClock(start.UTC(), time.Millisecond)
	}
	if runID == "" {
		runID = schema.NewRunID()
	}

	if auditPath == "" {
		auditPath = loaded.AuditPath
	}
	var sink *audit.Writer
	if auditPath != "" {
		sink, err = audit.NewWriter(auditPath)
		if err != nil {
			logs.Errorf("audit writer failed: %v", err)
			return exitError
		}
		defer func() {
			_ = sink.Close()
		}()
	}

	machine := order.NewMachine(clock, nil)
	book := ledger.NewEngine(clock, loaded.Registry)
	if err := book.OpenCash(loaded.OpeningCash); err != nil {
		logs.Errorf("opening cash failed: %v", err)
		return exitError
	}
	auditLog := audit.NewLog(clock, runID, sink)
	metrics := &obs.Metrics{}

	paper := venue.NewPaper(venue.PaperConfig{FeeBps: loaded.FeeBps}, clock, loaded.Registry)
	router := venue.NewRouter()
	for mode, adapter := range map[schema.ExecMode]venue.Adapter{
		schema.ExecModePaper:   paper,
		schema.ExecModeShadow:  venue.NewShadow(clock),
		schema.ExecModeTestnet: venue.NewTestnet(clock, paper, nil),
	} {
		if err := router.Register(mode, adapter); err != nil {
			logs.Errorf("router setup failed: %v", err)
			return exitError
		}
	}

	orch, err := pipeline.NewOrchestrator(loaded.Pipeline, runID, loaded.SessionID, pipeline.Deps{
		Clock:    clock,
		Registry: loaded.Registry,
		Orders:   machine,
		Ledger:   book,
		Audit:    auditLog,
		Router:   router,
		Gate:     gov.Load(""),
		Risk:     risk.NewEngine(loaded.Risk, loaded.Registry),
		Metrics:  metrics,
	})
	if err != nil {
		logs.Errorf("orchestrator setup failed: %v", err)
		return exitError
	}

	logs.Infof("run %s: %d intents, mode=%s", runID, len(intents), loaded.Pipeline.Mode)

	ctx := context.Background()
	accepted, rejected := 0, 0
	for _, intent := range intents {
		result, err := orch.Submit(ctx, intent)
		if err != nil {
			logs.Errorf("intent %s: engine fault: %v", intent.IntentID, err)
			return exitError
		}
		switch result.Outcome {
		case pipeline.OutcomeAccepted:
			accepted++
			logs.Infof("intent %s: %s order=%s state=%s",
				intent.IntentID, result.Outcome, result.ClientOrderID, result.Order.State)
		default:
			rejected++
			logs.Infof("intent %s: %s reason=%s", intent.IntentID, result.Outcome, result.ReasonCode)
		}
	}

	if err := book.CheckInvariants(); err != nil {
		logs.Errorf("ledger invariant violated: %v", err)
		return exitError
	}

	external, err := loadExternal(externalPath)
	if err != nil {
		logs.Errorf("external snapshot load failed: %v", err)
		return exitError
	}
	reconEngine := recon.NewEngine(clock, loaded.Recon)
	now := clock.Now()
	diffs := reconEngine.Reconcile(runID, orch.InternalView(), external, now)
	metrics.AddReconDiffs(len(diffs))
	summary := recon.CreateSummary(runID, loaded.SessionID, loaded.StrategyID, now, diffs, loaded.ReconTopN)
	if _, err := auditLog.Append(schema.AuditReconSummary, "", "", "", map[string]string{
		"totalDiffs":  fmt.Sprintf("%d", summary.TotalDiffs),
		"maxSeverity": string(summary.MaxSeverity),
	}); err != nil {
		logs.Errorf("audit append failed: %v", err)
		return exitError
	}

	snapshot, err := book.ExportSnapshotJSON(now, marksFrom(loaded.Registry))
	if err != nil {
		logs.Errorf("snapshot export failed: %v", err)
		return exitError
	}
	if snapshotPath != "" {
		if err := os.WriteFile(snapshotPath, snapshot, 0o644); err != nil {
			logs.Errorf("snapshot write failed: %v", err)
			return exitError
		}
	}

	if loaded.ArchiveDSN != "" {
		if err := archiveRun(loaded.ArchiveDSN, runID, now, summary, snapshot); err != nil {
			logs.Errorf("archive failed: %v", err)
			return exitError
		}
	}

	if sink != nil {
		if err := sink.Flush(); err != nil {
			logs.Errorf("audit flush failed: %v", err)
			return exitError
		}
	}

	snap := metrics.Snapshot()
	logs.Infof("done: accepted=%d rejected=%d fills=%d dedup=%d retries=%d diffs=%d maxSeverity=%s",
		accepted, rejected, snap.FillsApplied, snap.FillsDeduped, snap.DispatchRetries,
		summary.TotalDiffs, summary.MaxSeverity)

	return verdict(accepted, rejected, summary)
}

// verdict folds run outcomes and the reconciliation summary into the
// process exit code.
func verdict(accepted, rejected int, summary schema.ReconSummary) int {
	switch {
	case summary.HasCritical || summary.HasFail:
		return exitReject
	case accepted == 0 && rejected > 0:
		return exitReject
	case rejected > 0 || summary.CountsBySeverity[schema.SeverityWarn] > 0:
		return exitInconclusive
	default:
		return exitAccept
	}
}

func loadConfig(path string) (ops.Loaded, error) {
	if path == "" {
		return ops.Loaded{}, errors.New("missing -config")
	}
	loaded, err := ops.Load(path)
	if err != nil {
		return ops.Loaded{}, errors.Wrap(err, "load config")
	}
	return loaded, nil
}

func loadIntents(path string) ([]pipeline.OrderIntent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read intents")
	}
	var intents []pipeline.OrderIntent
	if err := json.Unmarshal(data, &intents); err != nil {
		return nil, errors.Wrap(err, "parse intents")
	}
	return intents, nil
}

func loadExternal(path string) (*recon.ExternalSnapshot, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read external snapshot")
	}
	var external recon.ExternalSnapshot
	if err := json.Unmarshal(data, &external); err != nil {
		return nil, errors.Wrap(err, "parse external snapshot")
	}
	return &external, nil
}

func archiveRun(dsn, runID string, at time.Time, summary schema.ReconSummary, snapshot []byte) error {
	store, err := archive.Open(archive.Option{ConnString: dsn})
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()
	if err := store.SaveSummary(summary); err != nil {
		return err
	}
	return store.SaveSnapshot(runID, at, snapshot)
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

func profilingAppName(loaded ops.Loaded) string {
	if loaded.Profiling.AppName != "" {
		return loaded.Profiling.AppName
	}
	return "sim-exec"
}

type emptyLogger struct{}

func (emptyLogger) Infof(_ string, _ ...interface{})  {}
func (emptyLogger) Debugf(_ string, _ ...interface{}) {}
func (emptyLogger) Errorf(_ string, _ ...interface{}) {}
