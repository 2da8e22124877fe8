package audit

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"tcpchat/internal/pkg/logx"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const insertEventSQL = `INSERT INTO chat_events (session_id, action, actor, target, detail, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`

// PostgresStore writes audit events to the chat_events table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to PostgreSQL and applies pending migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}

	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := runMigrations(sqlDB); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// runMigrations applies all pending migrations from the embedded file system.
func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	logx.Info("Audit migrations applied successfully.")
	return nil
}

// Insert writes one event.
func (s *PostgresStore) Insert(ctx context.Context, e Event) error {
	_, err := s.pool.Exec(ctx, insertEventSQL, eventArgs(e)...)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// eventArgs returns e's values in insertEventSQL column order.
func eventArgs(e Event) []any {
	return []any{e.SessionID, string(e.Action), e.Actor, e.Target, e.Detail, e.At}
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
