package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"graduation-engine/internal/config"
	"graduation-engine/internal/storage"
	chstore "graduation-engine/internal/storage/clickhouse"
	"graduation-engine/internal/storage/memory"
	"graduation-engine/internal/storage/migrations"
	pgstore "graduation-engine/internal/storage/postgres"
)

// stores holds every store the service writes to.
// The history stores are nil when ClickHouse is not configured.
type stores struct {
	candidates   storage.CandidateStore
	gateResults  storage.GateResultStore
	scores       storage.ScoreStore
	positions    storage.PositionStore
	ledgerState  storage.LedgerStateStore
	scoreHistory storage.ScoreHistoryStore
	tradeHistory storage.TradeHistoryStore
}

// openStores connects to Postgres and ClickHouse and applies migrations.
// Without a Postgres DSN the operational stores are kept in memory.
func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (*stores, func(), error) {
	s := &stores{}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Postgres.DSN == "" {
		logger.Warn("postgres dsn not set, using in-memory stores")
		s.candidates = memory.NewCandidateStore()
		s.gateResults = memory.NewGateResultStore()
		s.scores = memory.NewScoreStore()
		s.positions = memory.NewPositionStore()
		s.ledgerState = memory.NewLedgerStateStore()
	} else {
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN,
			pgstore.WithMaxConns(cfg.Postgres.MaxConns),
			pgstore.WithMinConns(cfg.Postgres.MinConns),
			pgstore.WithMaxConnLifetime(cfg.Postgres.MaxConnLifetime))
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)

		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		logger.Info("postgres ready", zap.Strings("applied_migrations", applied))

		s.candidates = pgstore.NewCandidateStore(pool)
		s.gateResults = pgstore.NewGateResultStore(pool)
		s.scores = pgstore.NewScoreStore(pool)
		s.positions = pgstore.NewPositionStore(pool)
		s.ledgerState = pgstore.NewLedgerStateStore(pool)
	}

	if cfg.ClickHouse.DSN == "" {
		logger.Info("clickhouse dsn not set, analytics history disabled")
		return s, cleanup, nil
	}
	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	closers = append(closers, func() { _ = conn.Close() })
	logger.Info("clickhouse ready")

	s.scoreHistory = chstore.NewScoreHistoryStore(conn)
	s.tradeHistory = chstore.NewTradeHistoryStore(conn)
	return s, cleanup, nil
}
