package schema

import "time"

// AuditEventType categorizes audit log records.
type AuditEventType string

const (
	AuditIntentReceived   AuditEventType = "INTENT_RECEIVED"
	AuditValidationReject AuditEventType = "VALIDATION_REJECT"
	AuditRiskReject       AuditEventType = "RISK_REJECT"
	AuditGovernanceReject AuditEventType = "GOVERNANCE_REJECT"
	AuditOrderSubmitted   AuditEventType = "ORDER_SUBMITTED"
	AuditOrderAcked       AuditEventType = "ORDER_ACKNOWLEDGED"
	AuditOrderRejected    AuditEventType = "ORDER_REJECTED"
	AuditOrderCancelled   AuditEventType = "ORDER_CANCELLED"
	AuditOrderClosed      AuditEventType = "ORDER_CLOSED"
	AuditOrderFailed      AuditEventType = "ORDER_FAILED"
	AuditFillApplied      AuditEventType = "FILL_APPLIED"
	AuditFillDuplicate    AuditEventType = "FILL_DUPLICATE"
	AuditAdapterRetry     AuditEventType = "ADAPTER_RETRY"
	AuditReconSummary     AuditEventType = "RECON_SUMMARY"
)

// AuditEntry is one append-only audit record. Sequence is the canonical
// ordering key; Timestamp is informational and may differ between
// otherwise identical runs.
type AuditEntry struct {
	EntryID       string            `json:"entryId"`
	Timestamp     time.Time         `json:"timestamp"`
	Sequence      uint64            `json:"sequence"`
	EventType     AuditEventType    `json:"eventType"`
	ClientOrderID string            `json:"clientOrderId,omitempty"`
	OldState      OrderState        `json:"oldState,omitempty"`
	NewState      OrderState        `json:"newState,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}
