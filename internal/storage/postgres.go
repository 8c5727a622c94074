package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/lueurxax/goal-clip-bot/internal/core/domain"
	"github.com/lueurxax/goal-clip-bot/migrations"
)

// PostgresBackend keeps history in PostgreSQL. The schema is managed by goose
// migrations embedded in the migrations package.
type PostgresBackend struct {
	Pool   *pgxpool.Pool
	Logger *zerolog.Logger
}

// PoolOptions configures the database connection pool.
type PoolOptions struct {
	MaxConns          int32
	MinConns          int32
	MaxConnIdleTime   time.Duration
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration
}

// DefaultPoolOptions returns the pool configuration used for the history table.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:          defaultMaxConns,
		MinConns:          defaultMinConns,
		MaxConnIdleTime:   defaultMaxConnIdleTime,
		MaxConnLifetime:   defaultMaxConnLifetime,
		HealthCheckPeriod: defaultHealthCheckPeriod,
	}
}

// OpenPostgres connects with default pool options and applies migrations.
func OpenPostgres(ctx context.Context, dsn string, logger *zerolog.Logger) (*PostgresBackend, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	applyPoolOptions(config, DefaultPoolOptions())

	b, err := connectWithRetries(ctx, config, logger)
	if err != nil {
		return nil, err
	}

	if err := b.Migrate(ctx); err != nil {
		b.Pool.Close()
		return nil, err
	}

	return b, nil
}

// applyPoolOptions applies non-zero pool options to the config.
func applyPoolOptions(config *pgxpool.Config, opts PoolOptions) {
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}

	if opts.MinConns > 0 {
		config.MinConns = opts.MinConns
	}

	if opts.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	if opts.MaxConnLifetime > 0 {
		config.MaxConnLifetime = opts.MaxConnLifetime
	}

	if opts.HealthCheckPeriod > 0 {
		config.HealthCheckPeriod = opts.HealthCheckPeriod
	}
}

// connectWithRetries attempts to connect to the database with retries.
func connectWithRetries(ctx context.Context, config *pgxpool.Config, logger *zerolog.Logger) (*PostgresBackend, error) {
	var pool *pgxpool.Pool

	var err error

	for i := 0; i < maxConnectionRetries; i++ {
		pool, err = pgxpool.NewWithConfig(ctx, config)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return &PostgresBackend{Pool: pool, Logger: logger}, nil
			}
		}

		if pool != nil {
			pool.Close()
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect to database: %w", ctx.Err())
		case <-time.After(ConnectionRetrySleep):
		}
	}

	return nil, fmt.Errorf("failed to connect to database after retries: %w", err)
}

const migrationLockID = 7301

type gooseLogger struct {
	logger *zerolog.Logger
}

func (l *gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatal().Msgf(format, v...)
}

func (l *gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info().Msgf(format, v...)
}

// Migrate runs database migrations using goose.
// It acquires an advisory lock to ensure only one migration runs at a time
// across multiple instances.
func (b *PostgresBackend) Migrate(ctx context.Context) error {
	conn, err := b.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	defer func() {
		//nolint:errcheck // advisory unlock in defer is best-effort, lock released on connection close anyway
		_, _ = conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID)
	}()

	dbSQL := stdlib.OpenDB(*b.Pool.Config().ConnConfig)

	defer func() {
		_ = dbSQL.Close()
	}()

	logger := b.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(&gooseLogger{logger: logger})

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.Up(dbSQL, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (b *PostgresBackend) Name() string { return "postgres" }

func (b *PostgresBackend) Load(ctx context.Context) ([]domain.HistoryRecord, error) {
	rows, err := b.Pool.Query(ctx, `SELECT dedup_key, source_url, emitted_at FROM emission_history ORDER BY emitted_at`)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryRecord

	for rows.Next() {
		var (
			key, url string
			emitted  time.Time
		)

		if err := rows.Scan(&key, &url, &emitted); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}

		dk, err := domain.ParseDedupKey(key)
		if err != nil {
			continue
		}

		out = append(out, domain.HistoryRecord{Key: dk, SourceURL: url, EmittedAt: emitted.UTC()})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return out, nil
}

func (b *PostgresBackend) Append(ctx context.Context, rec domain.HistoryRecord) error {
	_, err := b.Pool.Exec(ctx,
		`INSERT INTO emission_history (dedup_key, source_url, emitted_at) VALUES ($1, $2, $3)`,
		rec.Key.String(), rec.SourceURL, rec.EmittedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	return nil
}

func (b *PostgresBackend) Prune(ctx context.Context, before time.Time) (int, error) {
	tag, err := b.Pool.Exec(ctx, `DELETE FROM emission_history WHERE emitted_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

func (b *PostgresBackend) Ping(ctx context.Context) error {
	return b.Pool.Ping(ctx)
}

// Close closes the database connection pool.
func (b *PostgresBackend) Close() error {
	b.Pool.Close()
	return nil
}
