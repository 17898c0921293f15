package integration

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"wallet-registry/internal/core/domain"
	"wallet-registry/internal/core/ports"
)

var errIndexDown = errors.New("search index unavailable")

// --- In-Memory Audit Repo ---

type inMemoryAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditLog
}

func newInMemoryAuditRepo() *inMemoryAuditRepo {
	return &inMemoryAuditRepo{}
}

func (r *inMemoryAuditRepo) Create(_ context.Context, entry *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = int64(len(r.entries) + 1)
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *inMemoryAuditRepo) all() []domain.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditLog, len(r.entries))
	copy(out, r.entries)
	return out
}

// --- Switchable Index ---

// switchableIndex forwards to a real index until writes are turned off,
// simulating a search engine outage after the primary store commit.
type switchableIndex struct {
	ports.WalletIndex
	down atomic.Bool
}

func (x *switchableIndex) Index(ctx context.Context, w domain.Wallet) error {
	if x.down.Load() {
		return errIndexDown
	}
	return x.WalletIndex.Index(ctx, w)
}

func (x *switchableIndex) Remove(ctx context.Context, id int64) error {
	if x.down.Load() {
		return errIndexDown
	}
	return x.WalletIndex.Remove(ctx, id)
}
