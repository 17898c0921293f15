// Package memory provides an in-process wallet store for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"wallet-registry/internal/core/domain"
)

// WalletStore implements ports.WalletStore on a map guarded by a RWMutex.
type WalletStore struct {
	mu      sync.RWMutex
	wallets map[int64]domain.Wallet
	lastID  int64
}

// NewWalletStore creates an empty store. The first generated id is 1.
func NewWalletStore() *WalletStore {
	return &WalletStore{wallets: make(map[int64]domain.Wallet)}
}

// Save assigns the next id when w has none and otherwise overwrites the entry.
func (s *WalletStore) Save(_ context.Context, w *domain.Wallet) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := clone(*w)
	if saved.ID == nil {
		s.lastID++
		saved = saved.WithID(s.lastID)
	} else if *saved.ID > s.lastID {
		s.lastID = *saved.ID
	}
	s.wallets[*saved.ID] = saved

	out := clone(saved)
	return &out, nil
}

// FindAll returns every wallet ordered by id.
func (s *WalletStore) FindAll(_ context.Context) ([]domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Wallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		out = append(out, clone(w))
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].ID < *out[j].ID })
	return out, nil
}

// FindByID returns nil, nil when id is unknown.
func (s *WalletStore) FindByID(_ context.Context, id int64) (*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[id]
	if !ok {
		return nil, nil
	}
	out := clone(w)
	return &out, nil
}

// DeleteByID removes id if present.
func (s *WalletStore) DeleteByID(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.wallets, id)
	return nil
}

// Ping implements ports.HealthChecker; the store is always reachable.
func (s *WalletStore) Ping(context.Context) error { return nil }

// Name returns the dependency name.
func (s *WalletStore) Name() string { return "memory" }

// clone copies the pointer fields so callers never share state with the store.
func clone(w domain.Wallet) domain.Wallet {
	if w.ID != nil {
		id := *w.ID
		w.ID = &id
	}
	if w.Description != nil {
		d := *w.Description
		w.Description = &d
	}
	return w
}
