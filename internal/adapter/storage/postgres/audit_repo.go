package postgres

import (
	"context"
	"fmt"

	"wallet-registry/internal/core/domain"
)

// AuditRepo implements ports.AuditRepository on the wallet_audit_log table.
type AuditRepo struct {
	pool Pool
}

// NewAuditRepo creates a PostgreSQL-backed audit repository.
func NewAuditRepo(pool Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// Create inserts entry and fills in its generated id.
func (r *AuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	query := `INSERT INTO wallet_audit_log (action, resource, entity_id, commit_state, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var requestID *string
	if entry.RequestID != "" {
		requestID = &entry.RequestID
	}

	err := r.pool.QueryRow(ctx, query,
		string(entry.Action), entry.Resource, entry.EntityID,
		string(entry.Commit), requestID, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
