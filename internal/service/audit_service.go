package service

import (
	"context"
	"time"

	"wallet-registry/internal/core/domain"
	"wallet-registry/internal/core/ports"
	"wallet-registry/pkg/logger"

	"github.com/rs/zerolog"
)

type auditService struct {
	repo ports.AuditRepository
	log  zerolog.Logger
}

// NewAuditService creates a new audit service.
// If repo is nil, audit entries are only written to the logger.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) ports.AuditService {
	return &auditService{repo: repo, log: logger.Component(log, "audit")}
}

// Record logs a mutation asynchronously (fire-and-forget).
func (s *auditService) Record(ctx context.Context, n domain.Notification, commit domain.CommitState) {
	entry := &domain.AuditLog{
		Action:    n.Action,
		Resource:  n.Resource,
		EntityID:  n.ID,
		Commit:    commit,
		RequestID: logger.RequestID(ctx),
		CreatedAt: time.Now().UTC(),
	}

	go func() {
		s.log.Info().
			Str("action", string(entry.Action)).
			Str("resource", entry.Resource).
			Int64("entity_id", entry.EntityID).
			Str("commit", string(entry.Commit)).
			Str("request_id", entry.RequestID).
			Msg("audit")

		if s.repo != nil {
			if err := s.repo.Create(context.Background(), entry); err != nil {
				s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to persist audit log")
			}
		}
	}()
}
