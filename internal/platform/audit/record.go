package audit

import "time"

// Record is one append-only row of the audit trail. Details are stored after
// redaction.
type Record struct {
	ID           int64          `json:"id"`
	ActorID      string         `json:"actor_id"`
	ActorName    string         `json:"actor_name,omitempty"`
	ClientIP     string         `json:"client_ip,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	RecordedAt   time.Time      `json:"recorded_at"`
}

// Common actions.
const (
	ActionRead         = "read"
	ActionList         = "list"
	ActionCreate       = "create"
	ActionUpdate       = "update"
	ActionSoftDelete   = "soft_delete"
	ActionBatchDelete  = "batch_soft_delete"
	ActionLock         = "lock"
	ActionPatientPurge = "patient.purge"
	ActionReport       = "patient.report"
)

// Outcome values stored under the "outcome" detail key.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
