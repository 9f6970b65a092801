package recon

import (
	"sort"
	"time"

	"main/internal/schema"
)

// DefaultTopN bounds summary diff lists when no limit is configured.
const DefaultTopN = 10

// CreateSummary aggregates one reconciliation run. Counts and flags
// cover the full diff set; TopDiffs is ordered by (severity rank desc,
// timestamp asc, diff id asc) and truncated to topN, so repeated calls
// on the same diff set yield the same summary.
func CreateSummary(runID, sessionID, strategyID string, at time.Time, diffs []schema.ReconDiff, topN int) schema.ReconSummary {
	if topN <= 0 {
		topN = DefaultTopN
	}

	summary := schema.ReconSummary{
		RunID:            runID,
		Timestamp:        at,
		SessionID:        sessionID,
		StrategyID:       strategyID,
		TotalDiffs:       len(diffs),
		CountsBySeverity: make(map[schema.Severity]int),
		CountsByType:     make(map[schema.DiffType]int),
		MaxSeverity:      schema.SeverityInfo,
	}
	if len(diffs) == 0 {
		summary.TopDiffs = []schema.ReconDiff{}
		return summary
	}

	for _, d := range diffs {
		summary.CountsBySeverity[d.Severity]++
		summary.CountsByType[d.Type]++
		summary.MaxSeverity = schema.MaxSeverity(summary.MaxSeverity, d.Severity)
		switch d.Severity {
		case schema.SeverityCritical:
			summary.HasCritical = true
		case schema.SeverityFail:
			summary.HasFail = true
		}
	}

	ordered := make([]schema.ReconDiff, len(diffs))
	copy(ordered, diffs)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.DiffID < b.DiffID
	})
	if len(ordered) > topN {
		ordered = ordered[:topN]
	}
	summary.TopDiffs = ordered
	return summary
}
