package recon

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

var reconAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestEngine() *Engine {
	return NewEngine(schema.NewFixedClock(reconAt, 0), Config{})
}

func viewWith(symbol, qty string) InternalView {
	return InternalView{
		Cash:      dec("10000"),
		Positions: map[string]decimal.Decimal{symbol: dec(qty)},
	}
}

func extWith(symbol, qty, cash string) *ExternalSnapshot {
	c := dec(cash)
	return &ExternalSnapshot{
		Cash:      &c,
		Positions: map[string]decimal.Decimal{symbol: dec(qty)},
	}
}

func TestNilExternalMirrorsClean(t *testing.T) {
	e := newTestEngine()
	internal := viewWith("BTCUSDT", "1.5")
	internal.Orders = map[string]schema.OrderState{"c-1": schema.OrderStateFilled}
	diffs := e.Reconcile("run-1", internal, nil, reconAt)
	assert.Empty(t, diffs)
}

func TestPositionDivergenceFail(t *testing.T) {
	e := newTestEngine()
	diffs := e.Reconcile("run-1", viewWith("BTCUSDT", "1.0"), extWith("BTCUSDT", "0.95", "10000"), reconAt)
	require.Len(t, diffs, 1)
	assert.Equal(t, schema.DiffTypePosition, diffs[0].Type)
	assert.Equal(t, schema.SeverityFail, diffs[0].Severity)
}

func TestPositionWithinToleranceNoDiff(t *testing.T) {
	e := newTestEngine()
	diffs := e.Reconcile("run-1", viewWith("BTCUSDT", "1.0"), extWith("BTCUSDT", "1.0005", "10000"), reconAt)
	assert.Empty(t, diffs)
}

func TestPositionAgainstZeroExternal(t *testing.T) {
	e := newTestEngine()

	diffs := e.Reconcile("run-1", viewWith("BTCUSDT", "0.5"), extWith("BTCUSDT", "0", "10000"), reconAt)
	require.Len(t, diffs, 1)
	assert.Equal(t, schema.SeverityFail, diffs[0].Severity)

	// Dust below the zero floor only warns.
	diffs = e.Reconcile("run-1", viewWith("BTCUSDT", "0.0000005"), extWith("BTCUSDT", "0", "10000"), reconAt)
	require.Len(t, diffs, 1)
	assert.Equal(t, schema.SeverityWarn, diffs[0].Severity)
}

func TestSignFlipIsCritical(t *testing.T) {
	e := newTestEngine()
	diffs := e.Reconcile("run-1", viewWith("BTCUSDT", "1.0"), extWith("BTCUSDT", "-1.0", "10000"), reconAt)
	require.Len(t, diffs, 1)
	assert.Equal(t, schema.SeverityCritical, diffs[0].Severity)
}

func TestCashDivergenceAlwaysFail(t *testing.T) {
	e := newTestEngine()
	diffs := e.Reconcile("run-1", viewWith("BTCUSDT", "1.0"), extWith("BTCUSDT", "1.0", "9000"), reconAt)
	require.Len(t, diffs, 1)
	assert.Equal(t, schema.DiffTypeCash, diffs[0].Type)
	assert.Equal(t, schema.SeverityFail, diffs[0].Severity)
}

func TestFilledOrderMissingExternally(t *testing.T) {
	e := newTestEngine()
	internal := viewWith("BTCUSDT", "1.0")
	internal.Orders = map[string]schema.OrderState{"c-1": schema.OrderStateFilled}
	diffs := e.Reconcile("run-1", internal, extWith("BTCUSDT", "1.0", "10000"), reconAt)
	require.Len(t, diffs, 1)
	assert.Equal(t, schema.DiffTypeOrder, diffs[0].Type)
	assert.Equal(t, schema.SeverityFail, diffs[0].Severity)
	assert.Equal(t, "c-1", diffs[0].ClientOrderID)
}

func TestDiffIDsDeterministic(t *testing.T) {
	e := newTestEngine()
	internal := viewWith("BTCUSDT", "1.0")
	external := extWith("BTCUSDT", "0.95", "10000")
	first := e.Reconcile("run-1", internal, external, reconAt)
	second := e.Reconcile("run-1", internal, external, reconAt)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].DiffID, second[0].DiffID)
}

func TestSummaryAggregatesFullSetAndTruncates(t *testing.T) {
	diffs := []schema.ReconDiff{
		{DiffID: "d", Timestamp: reconAt, Severity: schema.SeverityInfo, Type: schema.DiffTypePosition},
		{DiffID: "c", Timestamp: reconAt, Severity: schema.SeverityCritical, Type: schema.DiffTypePosition},
		{DiffID: "b", Timestamp: reconAt, Severity: schema.SeverityFail, Type: schema.DiffTypeCash},
		{DiffID: "a", Timestamp: reconAt, Severity: schema.SeverityFail, Type: schema.DiffTypeOrder},
		{DiffID: "e", Timestamp: reconAt.Add(-time.Minute), Severity: schema.SeverityFail, Type: schema.DiffTypePosition},
	}

	summary := CreateSummary("run-1", "sess-1", "strat-1", reconAt, diffs, 2)
	assert.Equal(t, 5, summary.TotalDiffs)
	assert.Equal(t, 3, summary.CountsBySeverity[schema.SeverityFail])
	assert.Equal(t, 3, summary.CountsByType[schema.DiffTypePosition])
	assert.True(t, summary.HasCritical)
	assert.True(t, summary.HasFail)
	assert.Equal(t, schema.SeverityCritical, summary.MaxSeverity)

	// Critical first, then fails ordered by timestamp then id.
	require.Len(t, summary.TopDiffs, 2)
	assert.Equal(t, "c", summary.TopDiffs[0].DiffID)
	assert.Equal(t, "e", summary.TopDiffs[1].DiffID)

	again := CreateSummary("run-1", "sess-1", "strat-1", reconAt, diffs, 2)
	assert.Equal(t, summary, again)
}
