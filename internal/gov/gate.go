// Package gov owns the live-mode governance gate. The core never
// reaches live execution; the gate only decides whether a LIVE request
// degrades to LIVE_BLOCKED quietly or is reported as unapproved.
package gov

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"main/internal/schema"
)

// Environment keys consulted by the gate.
const (
	EnvLiveApproved = "EXEC_LIVE_APPROVED"
	EnvLiveAckToken = "EXEC_LIVE_ACK_TOKEN"
)

// Gate resolves requested execution modes against operator policy.
type Gate struct {
	approved bool
	ackToken string
	expected string
}

// Load reads gate policy from the environment, honoring a .env file
// when present. expectedToken is the operator acknowledgment the
// environment must match; an empty expectedToken never approves.
func Load(expectedToken string) *Gate {
	_ = godotenv.Load()
	approved, _ := strconv.ParseBool(os.Getenv(EnvLiveApproved))
	return &Gate{
		approved: approved,
		ackToken: os.Getenv(EnvLiveAckToken),
		expected: expectedToken,
	}
}

// New builds a gate from explicit values, for tests and embedding.
func New(approved bool, ackToken, expectedToken string) *Gate {
	return &Gate{approved: approved, ackToken: ackToken, expected: expectedToken}
}

// Approved reports whether live trading has the full two-man approval:
// the environment flag plus a matching acknowledgment token.
func (g *Gate) Approved() bool {
	return g.approved && g.expected != "" && g.ackToken == g.expected
}

// Resolve maps a requested mode to the mode the pipeline may route.
// Simulated modes pass through untouched; anything else, approved or
// not, resolves to LIVE_BLOCKED. No resolved mode ever routes to a
// live venue.
func (g *Gate) Resolve(requested schema.ExecMode) schema.ExecMode {
	switch requested {
	case schema.ExecModePaper, schema.ExecModeShadow, schema.ExecModeTestnet:
		return requested
	default:
		return schema.ExecModeLiveBlocked
	}
}
