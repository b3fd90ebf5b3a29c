package migrations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"graduation-engine/internal/storage/postgres"
)

const createVersionsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// RunPostgresMigrations applies every embedded file not yet listed in
// schema_migrations, one transaction per file, and returns the applied names.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) ([]string, error) {
	if _, err := pool.Exec(ctx, createVersionsTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	ms, err := load(dialectPostgres)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, m := range ms {
		done, err := isApplied(ctx, pool, m.Name)
		if err != nil {
			return applied, err
		}
		if done {
			continue
		}
		if err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return fmt.Errorf("apply: %w", err)
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Name)
			return err
		}); err != nil {
			return applied, fmt.Errorf("migration %s: %w", m.Name, err)
		}
		applied = append(applied, m.Name)
	}
	return applied, nil
}

func isApplied(ctx context.Context, pool *postgres.Pool, version string) (bool, error) {
	var done bool
	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
	).Scan(&done)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return done, nil
}
