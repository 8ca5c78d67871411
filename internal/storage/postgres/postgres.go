package postgres

import (
	"context"
	"fmt"

	"github.com/FranksOps/rankwatch/internal/ranking"
	"github.com/FranksOps/rankwatch/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	engine TEXT NOT NULL,
	requested_at TIMESTAMPTZ NOT NULL,
	requested_pages INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS results (
	snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	page INTEGER NOT NULL,
	rank INTEGER NOT NULL,
	uri TEXT NOT NULL,
	advertisement BOOLEAN NOT NULL,
	PRIMARY KEY (snapshot_id, rank, page, uri, advertisement)
);
CREATE INDEX IF NOT EXISTS snapshots_query_idx ON snapshots (query, requested_at);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, snapshot *storage.Snapshot) error {
	return pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
		INSERT INTO snapshots (id, query, engine, requested_at, requested_pages)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
			snapshot.ID,
			snapshot.Query,
			snapshot.Engine,
			snapshot.RequestedAt,
			snapshot.RequestedPages,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert snapshot: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, r := range snapshot.Results {
			batch.Queue(`
			INSERT INTO results (snapshot_id, page, rank, uri, advertisement)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT DO NOTHING`,
				snapshot.ID, r.Page, r.Rank, r.URI, r.Advertisement)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: insert results: %w", err)
		}
		return nil
	})
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Snapshot, error) {
	query := `SELECT id, query, engine, requested_at, requested_pages FROM snapshots WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.Query != "" {
		query += fmt.Sprintf(` AND query = $%d`, paramCount)
		args = append(args, filter.Query)
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND requested_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY requested_at DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query snapshots: %w", err)
	}
	snapshots, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*storage.Snapshot, error) {
		var s storage.Snapshot
		err := row.Scan(&s.ID, &s.Query, &s.Engine, &s.RequestedAt, &s.RequestedPages)
		return &s, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan snapshots: %w", err)
	}

	for _, s := range snapshots {
		rows, err := b.pool.Query(ctx,
			`SELECT page, rank, uri, advertisement FROM results WHERE snapshot_id = $1 ORDER BY rank`, s.ID)
		if err != nil {
			return nil, fmt.Errorf("postgres: query results: %w", err)
		}
		results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ranking.Result, error) {
			var r ranking.Result
			err := row.Scan(&r.Page, &r.Rank, &r.URI, &r.Advertisement)
			return r, err
		})
		if err != nil {
			return nil, fmt.Errorf("postgres: scan results: %w", err)
		}
		if results == nil {
			results = []ranking.Result{}
		}
		s.Results = results
	}

	return snapshots, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
