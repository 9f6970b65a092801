package audit

import (
	"fmt"
	"strconv"

	"main/internal/schema"
)

// Log is the append-only audit event store. The sequence counter is
// owned by the instance and resettable, never process-global; consumers
// order records by Sequence, not Timestamp.
type Log struct {
	clock   schema.Clock
	runID   string
	seq     uint64
	entries []schema.AuditEntry
	sink    *Writer
}

// NewLog creates an audit log for one run. sink may be nil for an
// in-memory log.
func NewLog(clock schema.Clock, runID string, sink *Writer) *Log {
	if clock == nil {
		clock = schema.RealClock{}
	}
	return &Log{clock: clock, runID: runID, sink: sink}
}

// Append records one event and returns the stored entry.
func (l *Log) Append(eventType schema.AuditEventType, clientOrderID string, oldState, newState schema.OrderState, details map[string]string) (schema.AuditEntry, error) {
	l.seq++
	entry := schema.AuditEntry{
		EntryID:       schema.DeriveID(l.runID, "audit", strconv.FormatUint(l.seq, 10)),
		Timestamp:     l.clock.Now(),
		Sequence:      l.seq,
		EventType:     eventType,
		ClientOrderID: clientOrderID,
		OldState:      oldState,
		NewState:      newState,
		Details:       details,
	}
	l.entries = append(l.entries, entry)
	if l.sink != nil {
		if err := l.sink.Write(entry); err != nil {
			return entry, fmt.Errorf("audit sink write: %w", err)
		}
	}
	return entry, nil
}

// Sequence returns the last assigned sequence number.
func (l *Log) Sequence() uint64 {
	return l.seq
}

// Reset clears entries and restarts the sequence. Test isolation only.
func (l *Log) Reset() {
	l.seq = 0
	l.entries = nil
}

// Entries returns a copy of all entries in sequence order.
func (l *Log) Entries() []schema.AuditEntry {
	out := make([]schema.AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// EntriesFor returns the entries touching one order, in sequence order.
func (l *Log) EntriesFor(clientOrderID string) []schema.AuditEntry {
	var out []schema.AuditEntry
	for _, entry := range l.entries {
		if entry.ClientOrderID == clientOrderID {
			out = append(out, entry)
		}
	}
	return out
}
