package domain

import "strconv"

// Action names a mutation observed by clients and the audit trail.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// Notification describes a completed mutation: which resource, which id, what happened.
type Notification struct {
	Action   Action `json:"action"`
	Resource string `json:"resource"`
	ID       int64  `json:"id"`
}

// Key returns the alert key, e.g. "wallet.created".
func (n Notification) Key() string {
	return n.Resource + "." + string(n.Action)
}

// Param returns the identifier as it is sent in alert headers.
func (n Notification) Param() string {
	return strconv.FormatInt(n.ID, 10)
}

// CommitState tells whether a mutation reached both stores.
type CommitState string

const (
	// CommitFull means the primary store and the search index were both written.
	CommitFull CommitState = "FULL"
	// CommitPartial means the primary store was written but the index write failed.
	CommitPartial CommitState = "PARTIAL"
)
