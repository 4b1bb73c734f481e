package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newSQLite(t *testing.T) *Client {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return Wrap(db)
}

func count(t *testing.T, c *Client) int {
	t.Helper()
	var n int
	require.NoError(t, c.DB.QueryRow(`SELECT COUNT(*) FROM postings`).Scan(&n))
	return n
}

func TestMigrateAndCommit(t *testing.T) {
	ctx := context.Background()
	c := newSQLite(t)
	require.NoError(t, c.Migrate(ctx, "postings",
		`CREATE TABLE postings (id INTEGER PRIMARY KEY, title TEXT)`,
		`CREATE INDEX postings_title ON postings (title)`,
	))

	err := c.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO postings (title) VALUES ($1)`, "Go engineer")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count(t, c))
	assert.NoError(t, c.Ping(ctx))
}

func TestMigrateFailureNamesStatement(t *testing.T) {
	c := newSQLite(t)
	err := c.Migrate(context.Background(), "broken", `CREATE TABLE ok (id INTEGER)`, `NOT SQL`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrating broken: statement 2")
}

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	c := newSQLite(t)
	require.NoError(t, c.Migrate(ctx, "postings", `CREATE TABLE postings (id INTEGER PRIMARY KEY, title TEXT)`))

	boom := errors.New("boom")
	err := c.InTx(ctx, func(tx *sql.Tx) error {
		_, _ = tx.ExecContext(ctx, `INSERT INTO postings (title) VALUES ($1)`, "x")
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, count(t, c))
}

func TestInTxRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	c := newSQLite(t)
	require.NoError(t, c.Migrate(ctx, "postings", `CREATE TABLE postings (id INTEGER PRIMARY KEY, title TEXT)`))

	assert.Panics(t, func() {
		_ = c.InTx(ctx, func(tx *sql.Tx) error {
			_, _ = tx.ExecContext(ctx, `INSERT INTO postings (title) VALUES ($1)`, "x")
			panic("bad row")
		})
	})
	assert.Equal(t, 0, count(t, c))
}
