package schema

import "time"

// Severity ranks reconciliation findings.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarn     Severity = "WARN"
	SeverityFail     Severity = "FAIL"
	SeverityCritical Severity = "CRITICAL"
)

// Rank orders severities from least to most severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarn:
		return 1
	case SeverityFail:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// MaxSeverity returns the more severe of two severities.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// DiffType categorizes what diverged.
type DiffType string

const (
	DiffTypePosition DiffType = "POSITION"
	DiffTypeCash     DiffType = "CASH"
	DiffTypeOrder    DiffType = "ORDER"
)

// ReconDiff is one immutable divergence finding. Diffs are data, not
// errors: they are surfaced through the audit log and the summary.
type ReconDiff struct {
	DiffID        string            `json:"diffId"`
	Timestamp     time.Time         `json:"timestamp"`
	ClientOrderID string            `json:"clientOrderId,omitempty"`
	Severity      Severity          `json:"severity"`
	Type          DiffType          `json:"type"`
	Description   string            `json:"description"`
	Details       map[string]string `json:"details,omitempty"`
}

// ReconSummary aggregates one reconciliation run. Counts and flags are
// computed over the full diff set; TopDiffs is the bounded,
// deterministically ordered head of it.
type ReconSummary struct {
	RunID            string           `json:"runId"`
	Timestamp        time.Time        `json:"timestamp"`
	SessionID        string           `json:"sessionId"`
	StrategyID       string           `json:"strategyId"`
	TotalDiffs       int              `json:"totalDiffs"`
	CountsBySeverity map[Severity]int `json:"countsBySeverity"`
	CountsByType     map[DiffType]int `json:"countsByType"`
	TopDiffs         []ReconDiff      `json:"topDiffs"`
	HasCritical      bool             `json:"hasCritical"`
	HasFail          bool             `json:"hasFail"`
	MaxSeverity      Severity         `json:"maxSeverity"`
}
