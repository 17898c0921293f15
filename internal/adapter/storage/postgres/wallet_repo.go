package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-registry/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// WalletRepo implements ports.WalletStore.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Save inserts w when it has no ID and upserts it otherwise.
func (r *WalletRepo) Save(ctx context.Context, w *domain.Wallet) (*domain.Wallet, error) {
	if w.ID == nil {
		return r.insert(ctx, w)
	}
	return r.upsert(ctx, w)
}

func (r *WalletRepo) insert(ctx context.Context, w *domain.Wallet) (*domain.Wallet, error) {
	query := `INSERT INTO wallet (name, description) VALUES ($1, $2)
		RETURNING id, name, description`

	saved := &domain.Wallet{}
	err := r.pool.QueryRow(ctx, query, w.Name, w.Description).
		Scan(&saved.ID, &saved.Name, &saved.Description)
	if err != nil {
		return nil, fmt.Errorf("insert wallet: %w", err)
	}
	return saved, nil
}

// upsert writes a wallet with a caller-chosen id. The id sequence is moved past
// that id so later inserts do not collide with it.
func (r *WalletRepo) upsert(ctx context.Context, w *domain.Wallet) (*domain.Wallet, error) {
	query := `INSERT INTO wallet (id, name, description) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description
		RETURNING id, name, description`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("upsert wallet: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	saved := &domain.Wallet{}
	err = tx.QueryRow(ctx, query, *w.ID, w.Name, w.Description).
		Scan(&saved.ID, &saved.Name, &saved.Description)
	if err != nil {
		return nil, fmt.Errorf("upsert wallet %d: %w", *w.ID, err)
	}

	_, err = tx.Exec(ctx,
		`SELECT setval('wallet_id_seq', $1) WHERE $1 >= (SELECT last_value FROM wallet_id_seq)`,
		*w.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert wallet %d: advance sequence: %w", *w.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("upsert wallet %d: commit: %w", *w.ID, err)
	}
	return saved, nil
}

// FindAll returns every wallet ordered by id.
func (r *WalletRepo) FindAll(ctx context.Context) ([]domain.Wallet, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description FROM wallet ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	wallets := make([]domain.Wallet, 0)
	for rows.Next() {
		var w domain.Wallet
		if err := rows.Scan(&w.ID, &w.Name, &w.Description); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	return wallets, nil
}

// FindByID fetches a wallet by id. Returns nil, nil when it does not exist.
func (r *WalletRepo) FindByID(ctx context.Context, id int64) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := r.pool.QueryRow(ctx, `SELECT id, name, description FROM wallet WHERE id = $1`, id).
		Scan(&w.ID, &w.Name, &w.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet by id: %w", err)
	}
	return w, nil
}

// DeleteByID removes a wallet. Deleting a missing id is not an error.
func (r *WalletRepo) DeleteByID(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM wallet WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete wallet: %w", err)
	}
	return nil
}
