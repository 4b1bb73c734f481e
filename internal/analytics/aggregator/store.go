// Package aggregator persists analytics snapshots to PostgreSQL.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/postgres"
)

// Schema creates the snapshot table.
const Schema = `CREATE TABLE IF NOT EXISTS analytics_snapshots (
    id          BIGSERIAL PRIMARY KEY,
    data        JSONB NOT NULL,
    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Store writes AggregatedStats snapshots and keeps only the newest
// retention rows.
type Store struct {
	db        *postgres.Client
	retention int
	logger    *slog.Logger
}

var _ analytics.SnapshotLister = (*Store)(nil)

// NewStore keeps the newest retention snapshots; zero or less keeps all.
func NewStore(db *postgres.Client, retention int) *Store {
	return &Store{
		db:        db,
		retention: retention,
		logger:    slog.Default().With("component", "analytics-store"),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.db.Migrate(ctx, "analytics_snapshots", Schema)
}

// SaveSnapshot inserts stats and prunes old rows in one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}

	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO analytics_snapshots (data, captured_at) VALUES ($1, $2)`,
			string(data), time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("inserting snapshot: %w", err)
		}
		if s.retention <= 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM analytics_snapshots WHERE id NOT IN (
				SELECT id FROM analytics_snapshots ORDER BY id DESC LIMIT $1)`,
			s.retention,
		); err != nil {
			return fmt.Errorf("pruning snapshots: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}

	s.logger.Info("analytics snapshot saved",
		"total_requests", stats.TotalRequests,
		"total_failures", stats.TotalFailures,
	)
	return nil
}

// Snapshot saves the aggregator's current stats.
func (s *Store) Snapshot(ctx context.Context, agg *analytics.Aggregator) error {
	return s.SaveSnapshot(ctx, agg.Stats())
}

// LatestSnapshot returns nil, nil when no snapshot exists yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.Snapshot, error) {
	snaps, err := s.ListSnapshots(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return &snaps[0], nil
}

// ListSnapshots returns the last limit snapshots, newest first. Rows that
// fail to decode are skipped.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.Snapshot, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, data, captured_at FROM analytics_snapshots ORDER BY id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []analytics.Snapshot
	for rows.Next() {
		var (
			snap analytics.Snapshot
			data []byte
		)
		if err := rows.Scan(&snap.ID, &data, &snap.CapturedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		if err := json.Unmarshal(data, &snap.Stats); err != nil {
			s.logger.Warn("skipping corrupt snapshot", "id", snap.ID, "error", err)
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}
