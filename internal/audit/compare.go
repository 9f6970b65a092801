package audit

import (
	"fmt"

	"main/internal/schema"
)

// Compare checks two audit streams for semantic equality: everything
// must match except the wall-clock Timestamp, which legitimately varies
// between otherwise identical runs.
func Compare(a, b []schema.AuditEntry) error {
	if len(a) != len(b) {
		return fmt.Errorf("audit stream length mismatch: %d vs %d", len(a), len(b))
	}
	for i := range a {
		left, right := a[i], b[i]
		if left.Sequence != right.Sequence {
			return fmt.Errorf("entry %d: sequence %d vs %d", i, left.Sequence, right.Sequence)
		}
		if left.EntryID != right.EntryID {
			return fmt.Errorf("entry %d: entry id %s vs %s", i, left.EntryID, right.EntryID)
		}
		if left.EventType != right.EventType {
			return fmt.Errorf("entry %d: event type %s vs %s", i, left.EventType, right.EventType)
		}
		if left.ClientOrderID != right.ClientOrderID {
			return fmt.Errorf("entry %d: client order id %s vs %s", i, left.ClientOrderID, right.ClientOrderID)
		}
		if left.OldState != right.OldState || left.NewState != right.NewState {
			return fmt.Errorf("entry %d: states %s->%s vs %s->%s",
				i, left.OldState, left.NewState, right.OldState, right.NewState)
		}
		if len(left.Details) != len(right.Details) {
			return fmt.Errorf("entry %d: details size %d vs %d", i, len(left.Details), len(right.Details))
		}
		for key, value := range left.Details {
			if right.Details[key] != value {
				return fmt.Errorf("entry %d: detail %s %q vs %q", i, key, value, right.Details[key])
			}
		}
	}
	return nil
}
