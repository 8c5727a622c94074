package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lueurxax/goal-clip-bot/internal/core/domain"
)

const memoryDSN = ":memory:"

// SQLiteBackend keeps history in an embedded SQLite database.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteBackend, error) {
	connStr := path
	if path == memoryDSN {
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if path == memoryDSN {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if path != memoryDSN {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	b := &SQLiteBackend{db: db}

	if err := b.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return b, nil
}

func (b *SQLiteBackend) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS emission_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dedup_key TEXT NOT NULL,
		source_url TEXT NOT NULL DEFAULT '',
		emitted_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_emission_history_emitted ON emission_history(emitted_at);
	`

	if _, err := b.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	return nil
}

func (b *SQLiteBackend) Name() string { return "sqlite" }

func (b *SQLiteBackend) Load(ctx context.Context) ([]domain.HistoryRecord, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT dedup_key, source_url, emitted_at FROM emission_history ORDER BY emitted_at`)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryRecord

	for rows.Next() {
		var (
			key, url string
			emitted  int64
		)

		if err := rows.Scan(&key, &url, &emitted); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}

		dk, err := domain.ParseDedupKey(key)
		if err != nil {
			continue
		}

		out = append(out, domain.HistoryRecord{Key: dk, SourceURL: url, EmittedAt: time.UnixMilli(emitted).UTC()})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return out, nil
}

func (b *SQLiteBackend) Append(ctx context.Context, rec domain.HistoryRecord) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO emission_history (dedup_key, source_url, emitted_at) VALUES (?, ?, ?)`,
		rec.Key.String(), rec.SourceURL, rec.EmittedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	return nil
}

func (b *SQLiteBackend) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM emission_history WHERE emitted_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return int(n), nil
}

func (b *SQLiteBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
