package obs

import "sync/atomic"

// Metrics collects lightweight counters for one engine run. Counters
// are cheap enough to leave on everywhere.
type Metrics struct {
	intents           uint64
	validationRejects uint64
	riskRejects       uint64
	governanceRejects uint64
	dispatches        uint64
	dispatchRetries   uint64
	fillsApplied      uint64
	fillsDeduped      uint64
	fillConflicts     uint64
	ordersFailed      uint64
	reconDiffs        uint64
}

// Snapshot is a point-in-time view of all counters.
type Snapshot struct {
	Intents           uint64
	ValidationRejects uint64
	RiskRejects       uint64
	GovernanceRejects uint64
	Dispatches        uint64
	DispatchRetries   uint64
	FillsApplied      uint64
	FillsDeduped      uint64
	FillConflicts     uint64
	OrdersFailed      uint64
	ReconDiffs        uint64
}

func (m *Metrics) IncIntent()           { atomic.AddUint64(&m.intents, 1) }
func (m *Metrics) IncValidationReject() { atomic.AddUint64(&m.validationRejects, 1) }
func (m *Metrics) IncRiskReject()       { atomic.AddUint64(&m.riskRejects, 1) }
func (m *Metrics) IncGovernanceReject() { atomic.AddUint64(&m.governanceRejects, 1) }
func (m *Metrics) IncDispatch()         { atomic.AddUint64(&m.dispatches, 1) }
func (m *Metrics) IncDispatchRetry()    { atomic.AddUint64(&m.dispatchRetries, 1) }
func (m *Metrics) IncFillApplied()      { atomic.AddUint64(&m.fillsApplied, 1) }
func (m *Metrics) IncFillDeduped()      { atomic.AddUint64(&m.fillsDeduped, 1) }
func (m *Metrics) IncFillConflict()     { atomic.AddUint64(&m.fillConflicts, 1) }
func (m *Metrics) IncOrderFailed()      { atomic.AddUint64(&m.ordersFailed, 1) }
func (m *Metrics) AddReconDiffs(n int)  { atomic.AddUint64(&m.reconDiffs, uint64(n)) }

// Snapshot captures the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Intents:           atomic.LoadUint64(&m.intents),
		ValidationRejects: atomic.LoadUint64(&m.validationRejects),
		RiskRejects:       atomic.LoadUint64(&m.riskRejects),
		GovernanceRejects: atomic.LoadUint64(&m.governanceRejects),
		Dispatches:        atomic.LoadUint64(&m.dispatches),
		DispatchRetries:   atomic.LoadUint64(&m.dispatchRetries),
		FillsApplied:      atomic.LoadUint64(&m.fillsApplied),
		FillsDeduped:      atomic.LoadUint64(&m.fillsDeduped),
		FillConflicts:     atomic.LoadUint64(&m.fillConflicts),
		OrdersFailed:      atomic.LoadUint64(&m.ordersFailed),
		ReconDiffs:        atomic.LoadUint64(&m.reconDiffs),
	}
}

// Reset zeroes all counters. Test isolation only.
func (m *Metrics) Reset() {
	*m = Metrics{}
}
