package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/pipeline"
	"main/internal/recon"
	"main/internal/risk"
	"main/internal/schema"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Registry  RegistryConfig  `json:"registry"`
	Risk      risk.Config     `json:"risk"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Ledger    LedgerConfig    `json:"ledger"`
	Recon     ReconConfig     `json:"recon"`
	Audit     AuditConfig     `json:"audit"`
	Archive   ArchiveConfig   `json:"archive"`
	Session   SessionConfig   `json:"session"`
	Profiling ProfilingConfig `json:"profiling"`
}

// RegistryConfig defines the tradable symbol universe.
type RegistryConfig struct {
	Symbols []SymbolConfig `json:"symbols"`
}

// SymbolConfig describes a symbol entry.
type SymbolConfig struct {
	Name          string          `json:"name"`
	QuoteCurrency string          `json:"quoteCurrency"`
	MarkPrice     decimal.Decimal `json:"markPrice"`
}

// PipelineConfig describes the orchestrator settings.
type PipelineConfig struct {
	Mode         string          `json:"mode"`
	KillSwitch   bool            `json:"killSwitch"`
	MaxPosition  decimal.Decimal `json:"maxPosition"`
	MaxRetries   int             `json:"maxRetries"`
	RetryDelayMs int64           `json:"retryDelayMs"`
	FeeBps       int64           `json:"feeBps"`
}

// LedgerConfig describes the opening book.
type LedgerConfig struct {
	OpeningCash decimal.Decimal `json:"openingCash"`
}

// ReconConfig describes divergence tolerances. Zero values use the
// reconciliation engine defaults.
type ReconConfig struct {
	AbsoluteFloor decimal.Decimal `json:"absoluteFloor"`
	RelativeFloor decimal.Decimal `json:"relativeFloor"`
	ZeroFloor     decimal.Decimal `json:"zeroFloor"`
	CashTolerance decimal.Decimal `json:"cashTolerance"`
	TopN          int             `json:"topN"`
}

// AuditConfig describes the audit sink.
type AuditConfig struct {
	Path string `json:"path"`
}

// ArchiveConfig describes the optional postgres archive. An empty DSN
// disables archival.
type ArchiveConfig struct {
	DSN string `json:"dsn"`
}

// SessionConfig identifies the run.
type SessionConfig struct {
	SessionID  string `json:"sessionId"`
	StrategyID string `json:"strategyId"`
}

// ProfilingConfig enables continuous profiling.
type ProfilingConfig struct {
	Enabled       bool   `json:"enabled"`
	ServerAddress string `json:"serverAddress"`
	AppName       string `json:"appName"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Registry    *schema.Registry
	Risk        risk.Config
	Pipeline    pipeline.Config
	FeeBps      int64
	OpeningCash decimal.Decimal
	Recon       recon.Config
	ReconTopN   int
	AuditPath   string
	ArchiveDSN  string
	SessionID   string
	StrategyID  string
	Profiling   ProfilingConfig
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	registry, err := buildRegistry(cfg.Registry)
	if err != nil {
		return Loaded{}, err
	}
	pipe, err := resolvePipeline(cfg.Pipeline)
	if err != nil {
		return Loaded{}, err
	}
	if cfg.Ledger.OpeningCash.IsNegative() {
		return Loaded{}, fmt.Errorf("openingCash must be >= 0")
	}

	loaded := Loaded{
		Registry:    registry,
		Risk:        cfg.Risk,
		Pipeline:    pipe,
		FeeBps:      cfg.Pipeline.FeeBps,
		OpeningCash: cfg.Ledger.OpeningCash,
		Recon: recon.Config{
			AbsoluteFloor: cfg.Recon.AbsoluteFloor,
			RelativeFloor: cfg.Recon.RelativeFloor,
			ZeroFloor:     cfg.Recon.ZeroFloor,
			CashTolerance: cfg.Recon.CashTolerance,
		},
		ReconTopN:  cfg.Recon.TopN,
		AuditPath:  cfg.Audit.Path,
		ArchiveDSN: cfg.Archive.DSN,
		SessionID:  cfg.Session.SessionID,
		StrategyID: cfg.Session.StrategyID,
		Profiling:  cfg.Profiling,
	}
	if loaded.SessionID == "" {
		loaded.SessionID = "default"
	}
	return loaded, nil
}

// LoadRegistry reads a JSON config file and only builds the registry.
func LoadRegistry(path string) (*schema.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return buildRegistry(cfg.Registry)
}

func buildRegistry(cfg RegistryConfig) (*schema.Registry, error) {
	reg := schema.NewRegistry()
	for _, sym := range cfg.Symbols {
		if sym.MarkPrice.IsNegative() {
			return nil, fmt.Errorf("mark price must be >= 0 for %s", sym.Name)
		}
		if err := reg.AddSymbol(schema.Symbol{
			Name:          sym.Name,
			QuoteCurrency: sym.QuoteCurrency,
			MarkPrice:     sym.MarkPrice,
		}); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func resolvePipeline(cfg PipelineConfig) (pipeline.Config, error) {
	// Unknown modes are kept as-is; governance resolves them to
	// LIVE_BLOCKED at routing time.
	mode := schema.ExecMode(cfg.Mode)
	if mode == "" {
		mode = schema.ExecModePaper
	}
	if cfg.MaxRetries < 0 {
		return pipeline.Config{}, fmt.Errorf("maxRetries must be >= 0")
	}
	if cfg.RetryDelayMs < 0 {
		return pipeline.Config{}, fmt.Errorf("retryDelayMs must be >= 0")
	}
	if cfg.MaxPosition.IsNegative() {
		return pipeline.Config{}, fmt.Errorf("maxPosition must be >= 0")
	}
	return pipeline.Config{
		Mode:        mode,
		KillSwitch:  cfg.KillSwitch,
		MaxPosition: cfg.MaxPosition,
		MaxRetries:  cfg.MaxRetries,
		RetryDelay:  time.Duration(cfg.RetryDelayMs) * time.Millisecond,
	}, nil
}
