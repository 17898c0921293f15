package postgres

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// schema is applied statement by statement inside one transaction.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS wallet (
		id          BIGSERIAL PRIMARY KEY,
		name        VARCHAR(255) NOT NULL,
		description VARCHAR(1024)
	)`,
	`CREATE TABLE IF NOT EXISTS wallet_audit_log (
		id         BIGSERIAL PRIMARY KEY,
		action     VARCHAR(16) NOT NULL,
		resource   VARCHAR(64) NOT NULL,
		entity_id  BIGINT NOT NULL,
		commit_state VARCHAR(16) NOT NULL,
		request_id VARCHAR(64),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_wallet_audit_log_entity ON wallet_audit_log (resource, entity_id)`,
}

// Migrate creates the tables the registry needs when they do not exist yet.
func Migrate(ctx context.Context, pool Pool, log zerolog.Logger) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range schema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}

	log.Info().Int("statements", len(schema)).Msg("Database schema is up to date")
	return nil
}
