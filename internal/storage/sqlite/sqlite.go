package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/FranksOps/rankwatch/internal/ranking"
	"github.com/FranksOps/rankwatch/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	engine TEXT NOT NULL,
	requested_at DATETIME NOT NULL,
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

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, snapshot *storage.Snapshot) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
	INSERT OR IGNORE INTO snapshots (id, query, engine, requested_at, requested_pages)
	VALUES (?, ?, ?, ?, ?)`,
		snapshot.ID,
		snapshot.Query,
		snapshot.Engine,
		snapshot.RequestedAt.UTC(),
		snapshot.RequestedPages,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert snapshot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// already stored
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT OR IGNORE INTO results (snapshot_id, page, rank, uri, advertisement)
	VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range snapshot.Results {
		if _, err := stmt.ExecContext(ctx, snapshot.ID, r.Page, r.Rank, r.URI, r.Advertisement); err != nil {
			return fmt.Errorf("sqlite: insert result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Snapshot, error) {
	query := `SELECT id, query, engine, requested_at, requested_pages FROM snapshots WHERE 1=1`
	args := []any{}

	if filter.Query != "" {
		query += ` AND query = ?`
		args = append(args, filter.Query)
	}
	if filter.Since != nil {
		query += ` AND requested_at >= ?`
		args = append(args, filter.Since.UTC())
	}

	query += ` ORDER BY requested_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*storage.Snapshot
	for rows.Next() {
		var s storage.Snapshot
		if err := rows.Scan(&s.ID, &s.Query, &s.Engine, &s.RequestedAt, &s.RequestedPages); err != nil {
			return nil, fmt.Errorf("sqlite: scan snapshot: %w", err)
		}
		snapshots = append(snapshots, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	for _, s := range snapshots {
		results, err := b.results(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		s.Results = results
	}

	return snapshots, nil
}

func (b *sqliteBackend) results(ctx context.Context, id string) ([]ranking.Result, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT page, rank, uri, advertisement FROM results WHERE snapshot_id = ? ORDER BY rank`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query results: %w", err)
	}
	defer rows.Close()

	results := []ranking.Result{}
	for rows.Next() {
		var r ranking.Result
		if err := rows.Scan(&r.Page, &r.Rank, &r.URI, &r.Advertisement); err != nil {
			return nil, fmt.Errorf("sqlite: scan result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return results, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
