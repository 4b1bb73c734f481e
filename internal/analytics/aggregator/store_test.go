package aggregator

import (
	"context"
	"database/sql"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T, retention int) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE analytics_snapshots (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		data        TEXT NOT NULL,
		captured_at DATETIME NOT NULL
	)`)
	require.NoError(t, err)
	return NewStore(postgres.Wrap(db), retention)
}

func TestSaveAndListSnapshots(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 0)

	latest, err := store.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	agg := analytics.NewAggregator(10)
	agg.Track(analytics.RankEvent{Type: analytics.EventRank, Strategy: "bm25", Outcome: analytics.OutcomeOK, Matches: 5})
	require.NoError(t, store.Snapshot(ctx, agg))
	agg.Track(analytics.RankEvent{Type: analytics.EventRank, Strategy: "tfidf", Outcome: analytics.OutcomeOK, Matches: 5})
	require.NoError(t, store.Snapshot(ctx, agg))

	snaps, err := store.ListSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, int64(2), snaps[0].Stats.TotalRequests)
	assert.Equal(t, int64(1), snaps[1].Stats.TotalRequests)
	assert.Greater(t, snaps[0].ID, snaps[1].ID)

	latest, err = store.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, snaps[0].ID, latest.ID)
}

func TestRetentionPrunesOldSnapshots(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 2)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.SaveSnapshot(ctx, analytics.AggregatedStats{TotalRequests: int64(i)}))
	}
	snaps, err := store.ListSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, int64(4), snaps[0].Stats.TotalRequests)
	assert.Equal(t, int64(3), snaps[1].Stats.TotalRequests)
}

func TestCorruptRowsAreSkipped(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 0)
	_, err := store.db.DB.Exec(`INSERT INTO analytics_snapshots (data, captured_at) VALUES ('{broken', CURRENT_TIMESTAMP)`)
	require.NoError(t, err)
	require.NoError(t, store.SaveSnapshot(ctx, analytics.AggregatedStats{TotalRequests: 9}))

	snaps, err := store.ListSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, int64(9), snaps[0].Stats.TotalRequests)
}
