// Package postgres opens the PostgreSQL pool shared by the SQL corpus
// provider and the analytics snapshot store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/resilience"
	_ "github.com/lib/pq"
)

// Client wraps a *sql.DB. Statements use $N placeholders, which both
// lib/pq and modernc.org/sqlite accept.
type Client struct {
	DB     *sql.DB
	logger *slog.Logger
}

// New opens a lib/pq pool and waits for the server to answer a ping,
// backing off while the database is still starting.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	c := Wrap(db)
	wait := resilience.Backoff{Attempts: 5, Base: 500 * time.Millisecond}
	if err := wait.Do(ctx, "postgres-ping", c.pingOnce); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	c.logger.Info("postgres connected", "host", cfg.Host, "database", cfg.Database)
	return c, nil
}

// Wrap adopts an already-open pool, e.g. an in-memory SQLite database.
func Wrap(db *sql.DB) *Client {
	return &Client{DB: db, logger: slog.Default().With("component", "postgres")}
}

func (c *Client) pingOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.DB.PingContext(ctx)
}

func (c *Client) Ping(ctx context.Context) error { return c.DB.PingContext(ctx) }

func (c *Client) Close() error { return c.DB.Close() }

// InTx runs fn in a transaction, committing when fn returns nil. The
// transaction is rolled back on error and on panic; panics propagate.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			c.logger.Error("rollback failed", "error", rbErr)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	committed = true
	return nil
}

// Migrate applies stmts in order inside one transaction.
func (c *Client) Migrate(ctx context.Context, name string, stmts ...string) error {
	err := c.InTx(ctx, func(tx *sql.Tx) error {
		for i, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("statement %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("migrating %s: %w", name, err)
	}
	c.logger.Debug("schema applied", "name", name, "statements", len(stmts))
	return nil
}
