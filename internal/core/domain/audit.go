package domain

import "time"

// AuditLog records a single wallet mutation.
type AuditLog struct {
	ID        int64       `json:"id"`
	Action    Action      `json:"action"`
	Resource  string      `json:"resource"`
	EntityID  int64       `json:"entity_id"`
	Commit    CommitState `json:"commit"`
	RequestID string      `json:"request_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
