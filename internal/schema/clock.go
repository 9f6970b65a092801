package schema

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies the current time. Injecting it keeps run output
// deterministic under test.
type Clock interface {
	Now() time.Time
}

// RealClock reads the wall clock in UTC.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// FixedClock returns a constant time, advancing by Step per call when
// Step is non-zero.
type FixedClock struct {
	t    time.Time
	step time.Duration
}

// NewFixedClock creates a clock pinned to t.
func NewFixedClock(t time.Time, step time.Duration) *FixedClock {
	return &FixedClock{t: t, step: step}
}

func (c *FixedClock) Now() time.Time {
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

// idNamespace scopes all derived ids to this engine.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("sim-exec-engine"))

// DeriveID builds a deterministic uuid from the given parts. The same
// parts always produce the same id, which is what makes intent replay
// land on the same order identity.
func DeriveID(parts ...string) string {
	joined := ""
	for i, p := range parts {
		if i > 0 {
			joined += "\x1f"
		}
		joined += p
	}
	return uuid.NewSHA1(idNamespace, []byte(joined)).String()
}

// NewRunID returns a random id for one engine run. Run ids are the only
// non-derived identity; everything downstream derives from them.
func NewRunID() string {
	return uuid.New().String()
}
