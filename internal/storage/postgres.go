package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/PatGB5/codeforces-submission-bot/internal/models"
)

// DefaultRowTable is the table created by the bundled migrations
const DefaultRowTable = "submission_rows"

// PostgresRowStore keeps sheet rows in a Postgres table, one logical sheet per sheet_id.
// Ranges are accepted for interface compatibility and ignored.
type PostgresRowStore struct {
	pool    *pgxpool.Pool
	queries rowQueries
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	Table        string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRowStore connects, runs migrations and prepares the row table
func NewPostgresRowStore(ctx context.Context, cfg PostgresConfig) (*PostgresRowStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 10
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 1
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	store := &PostgresRowStore{pool: pool, queries: newRowQueries(cfg.Table)}

	if table := cfg.Table; table != "" && table != DefaultRowTable {
		if _, err := pool.Exec(ctx, store.queries.create); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create table %s: %w", table, err)
		}
	}

	return store, nil
}

// Ping checks database connectivity
func (r *PostgresRowStore) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRowStore) Close() error {
	r.pool.Close()
	return nil
}

// ReadRows returns the rows of a sheet in insertion order
func (r *PostgresRowStore) ReadRows(ctx context.Context, sheetID, _ string) ([]models.SheetRow, error) {
	rows, err := r.pool.Query(ctx, r.queries.read, sheetID)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	defer rows.Close()

	var result []models.SheetRow
	for rows.Next() {
		var row models.SheetRow
		if err := rows.Scan(
			&row.Handle,
			&row.ProblemName,
			&row.Rating,
			&row.Tags,
			&row.Verdict,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}

// ClearRows deletes every row of a sheet
func (r *PostgresRowStore) ClearRows(ctx context.Context, sheetID, _ string) error {
	if _, err := r.pool.Exec(ctx, r.queries.clear, sheetID); err != nil {
		return fmt.Errorf("failed to clear rows: %w", err)
	}
	return nil
}

// AppendRows adds rows after the current last row of a sheet
func (r *PostgresRowStore) AppendRows(ctx context.Context, sheetID, _ string, rows []models.SheetRow) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		return r.appendTx(ctx, tx, sheetID, rows)
	})
}

// ReplaceRows clears and appends in one transaction
func (r *PostgresRowStore) ReplaceRows(ctx context.Context, sheetID, _ string, rows []models.SheetRow) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, r.queries.clear, sheetID); err != nil {
			return fmt.Errorf("failed to clear rows: %w", err)
		}
		return r.appendTx(ctx, tx, sheetID, rows)
	})
}

func (r *PostgresRowStore) appendTx(ctx context.Context, tx pgx.Tx, sheetID string, rows []models.SheetRow) error {
	if len(rows) == 0 {
		return nil
	}

	var next int
	if err := tx.QueryRow(ctx, r.queries.nextPosition, sheetID).Scan(&next); err != nil {
		return fmt.Errorf("failed to get next position: %w", err)
	}

	batch := &pgx.Batch{}
	for i, row := range rows {
		batch.Queue(r.queries.insert,
			sheetID,
			next+i,
			row.Handle,
			row.ProblemName,
			row.Rating,
			row.Tags,
			row.Verdict,
			row.CreatedAt,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to append rows: %w", err)
	}
	return nil
}

func (r *PostgresRowStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// rowQueries holds the statements for one table name
type rowQueries struct {
	create       string
	read         string
	clear        string
	nextPosition string
	insert       string
}

func newRowQueries(table string) rowQueries {
	if table == "" {
		table = DefaultRowTable
	}
	t := pq.QuoteIdentifier(table)

	return rowQueries{
		create: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (LIKE %s INCLUDING ALL)`,
			t, pq.QuoteIdentifier(DefaultRowTable)),
		read: fmt.Sprintf(`
			SELECT handle, problem_name, rating, tags, verdict, submitted_at
			FROM %s
			WHERE sheet_id = $1
			ORDER BY position`, t),
		clear: fmt.Sprintf(`DELETE FROM %s WHERE sheet_id = $1`, t),
		nextPosition: fmt.Sprintf(`SELECT COALESCE(MAX(position) + 1, 0) FROM %s WHERE sheet_id = $1`, t),
		insert: fmt.Sprintf(`
			INSERT INTO %s (sheet_id, position, handle, problem_name, rating, tags, verdict, submitted_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, t),
	}
}
