package ports

import (
	"context"
	"time"

	"wallet-registry/internal/core/domain"
)

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

// WalletStore is the primary store, the source of truth for wallets.
type WalletStore interface {
	// Save inserts w when it has no ID (the store assigns one) and otherwise
	// overwrites the row with that ID, creating it if missing.
	Save(ctx context.Context, w *domain.Wallet) (*domain.Wallet, error)
	FindAll(ctx context.Context) ([]domain.Wallet, error)
	// FindByID returns nil, nil when no wallet has the id.
	FindByID(ctx context.Context, id int64) (*domain.Wallet, error)
	// DeleteByID succeeds when the id does not exist.
	DeleteByID(ctx context.Context, id int64) error
}

// WalletIndex is the secondary, full-text searchable mirror of the store.
type WalletIndex interface {
	Index(ctx context.Context, w domain.Wallet) error
	Remove(ctx context.Context, id int64) error
	Search(ctx context.Context, query string) ([]domain.Wallet, error)
	Clear(ctx context.Context) error
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

// IdempotencyCache stores replayable responses keyed by client-supplied idempotency keys.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // nil, nil when absent
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
