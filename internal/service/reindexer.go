package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"wallet-registry/internal/core/ports"
	"wallet-registry/pkg/logger"

	"github.com/rs/zerolog"
)

// Reindexer repairs the search index after failed index writes and can
// rebuild it from the primary store.
type Reindexer struct {
	store ports.WalletStore
	index ports.WalletIndex
	log   zerolog.Logger

	mu         sync.Mutex
	stale      map[int64]uint64 // id -> generation of its latest mark
	gen        uint64
	rebuilding bool

	// run serialises reconcile passes and full rebuilds.
	run sync.Mutex
}

// NewReindexer creates a Reindexer with an empty stale set.
func NewReindexer(store ports.WalletStore, index ports.WalletIndex, log zerolog.Logger) *Reindexer {
	return &Reindexer{
		store: store,
		index: index,
		log:   logger.Component(log, "reindexer"),
		stale: make(map[int64]uint64),
	}
}

// MarkStale records that the index entry for id may be out of date.
func (r *Reindexer) MarkStale(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.stale[id] = r.gen
}

// Touch re-marks id when it is already stale or a rebuild is running, so a
// repair or rebuild that read an older version of id does not count as done.
func (r *Reindexer) Touch(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stale[id]; !ok && !r.rebuilding {
		return
	}
	r.gen++
	r.stale[id] = r.gen
}

// Pending returns the stale ids in ascending order.
func (r *Reindexer) Pending() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.stale))
	for id := range r.stale {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ReconcileOnce re-reads every stale id from the store and writes its current
// state to the index, removing ids the store no longer has. Ids that fail stay
// stale. It returns the number of ids repaired.
func (r *Reindexer) ReconcileOnce(ctx context.Context) (int, error) {
	r.run.Lock()
	defer r.run.Unlock()
	return r.reconcile(ctx)
}

func (r *Reindexer) reconcile(ctx context.Context) (int, error) {
	r.mu.Lock()
	snapshot := make(map[int64]uint64, len(r.stale))
	for id, gen := range r.stale {
		snapshot[id] = gen
	}
	r.mu.Unlock()

	var (
		repaired int
		errs     []error
	)
	for id, gen := range snapshot {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := r.repair(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("wallet %d: %w", id, err))
			continue
		}
		r.clear(id, gen)
		repaired++
	}

	if repaired > 0 || len(errs) > 0 {
		r.log.Info().
			Int("repaired", repaired).
			Int("failed", len(errs)).
			Msg("reconcile pass finished")
	}
	return repaired, errors.Join(errs...)
}

func (r *Reindexer) repair(ctx context.Context, id int64) error {
	w, err := r.store.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("read store: %w", err)
	}
	if w == nil {
		return r.index.Remove(ctx, id)
	}
	return r.index.Index(ctx, *w)
}

// clear drops id from the stale set unless it was marked again after gen.
func (r *Reindexer) clear(id int64, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stale[id] == gen {
		delete(r.stale, id)
	}
}

// Run reconciles stale ids every interval until ctx is cancelled.
// A non-positive interval disables the loop.
func (r *Reindexer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.log.Info().Dur("interval", interval).Msg("reconcile loop started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reconcile loop stopped")
			return
		case <-ticker.C:
			if len(r.Pending()) == 0 {
				continue
			}
			if _, err := r.ReconcileOnce(ctx); err != nil && ctx.Err() == nil {
				r.log.Warn().Err(err).Msg("reconcile pass left stale wallets")
			}
		}
	}
}

// ReindexAll clears the index and rebuilds it from every wallet in the store.
// Wallets written while the rebuild runs are re-read and indexed again before
// it returns; wallets that still fail stay stale. It returns the number of
// wallets indexed from the store snapshot.
func (r *Reindexer) ReindexAll(ctx context.Context) (int, error) {
	r.run.Lock()
	defer r.run.Unlock()

	start := time.Now()
	r.mu.Lock()
	gen := r.gen
	r.rebuilding = true
	r.mu.Unlock()

	indexed, complete, errs := r.rebuild(ctx)

	r.mu.Lock()
	r.rebuilding = false
	if complete {
		// Marks made before the rebuild started are covered by it.
		for id, g := range r.stale {
			if g <= gen {
				delete(r.stale, id)
			}
		}
	}
	pending := len(r.stale)
	r.mu.Unlock()

	if pending > 0 && len(errs) == 0 {
		if _, err := r.reconcile(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	r.log.Info().
		Int("indexed", indexed).
		Int("failed", len(errs)).
		Int("pending", len(r.Pending())).
		Dur("took", time.Since(start)).
		Msg("search index rebuilt")
	return indexed, errors.Join(errs...)
}

// rebuild reports complete when every wallet of the store snapshot was
// attempted.
func (r *Reindexer) rebuild(ctx context.Context) (int, bool, []error) {
	if err := r.index.Clear(ctx); err != nil {
		return 0, false, []error{fmt.Errorf("clear index: %w", err)}
	}

	wallets, err := r.store.FindAll(ctx)
	if err != nil {
		return 0, false, []error{fmt.Errorf("read store: %w", err)}
	}

	var (
		indexed int
		errs    []error
	)
	for _, w := range wallets {
		if err := r.index.Index(ctx, w); err != nil {
			r.MarkStale(w.IDValue())
			errs = append(errs, fmt.Errorf("wallet %d: %w", w.IDValue(), err))
			continue
		}
		indexed++
	}
	return indexed, true, errs
}
