package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/postgres"
	_ "modernc.org/sqlite"
)

const postingsQuery = `SELECT job_title, job_skills FROM job_postings
WHERE job_title IS NOT NULL AND job_title <> ''
  AND job_skills IS NOT NULL AND job_skills <> ''
ORDER BY id`

// SQLProvider reads postings from a job_postings table.
//
//	CREATE TABLE job_postings (
//	    id         BIGINT PRIMARY KEY,
//	    job_title  TEXT,
//	    job_skills TEXT
//	);
type SQLProvider struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLProvider(db *sql.DB) *SQLProvider {
	return &SQLProvider{
		db:     db,
		logger: slog.Default().With("component", "sql-provider"),
	}
}

func (p *SQLProvider) Load(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, postingsQuery)
	if err != nil {
		return nil, fmt.Errorf("querying job postings: %w", err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var title, skills string
		if err := rows.Scan(&title, &skills); err != nil {
			return nil, fmt.Errorf("scanning job posting: %w", err)
		}
		texts = append(texts, title+" "+skills)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating job postings: %w", err)
	}
	p.logger.Info("corpus rows loaded", "postings", len(texts))
	return texts, nil
}

// OpenSQL opens the database named by cfg.Corpus.SQLDriver: PostgreSQL via
// lib/pq or a SQLite file via modernc.org/sqlite.
func OpenSQL(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	switch cfg.Corpus.SQLDriver {
	case "postgres":
		client, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return client.DB, nil
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.Corpus.SQLiteDSN)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite %s: %w", cfg.Corpus.SQLiteDSN, err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("pinging sqlite: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Corpus.SQLDriver)
	}
}
