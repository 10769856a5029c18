// Package sqldb implements storage.Driver on a database/sql handle. Statements
// are built with ent's SQL builder so one implementation serves both the SQLite
// and PostgreSQL dialects.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/veneer/pkg/storage"
)

const turnsTable = "turns"

var columns = []string{
	"id",
	"model",
	"stream",
	"status_code",
	"prompt",
	"response",
	"prompt_tokens",
	"completion_tokens",
	"estimated",
	"duration_ns",
	"created_at",
}

// Driver implements storage.Driver for a SQL database.
type Driver struct {
	DB *sql.DB

	dialect string
}

// New wraps db and creates the turns table if it does not exist. The dialect
// is one of ent's dialect names (dialect.SQLite, dialect.Postgres).
func New(ctx context.Context, db *sql.DB, dialectName string) (*Driver, error) {
	switch dialectName {
	case dialect.SQLite, dialect.Postgres:
	default:
		return nil, fmt.Errorf("unsupported dialect: %q", dialectName)
	}

	d := &Driver{DB: db, dialect: dialectName}
	if err := d.migrate(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// createTable returns the turns table DDL for the given dialect.
func createTable(dialectName string) string {
	integer := "INTEGER"
	if dialectName == dialect.Postgres {
		integer = "BIGINT"
	}

	return `CREATE TABLE IF NOT EXISTS ` + turnsTable + ` (
	id                TEXT    NOT NULL PRIMARY KEY,
	model             TEXT    NOT NULL,
	stream            BOOLEAN NOT NULL,
	status_code       ` + integer + ` NOT NULL,
	prompt            TEXT    NOT NULL,
	response          TEXT    NOT NULL,
	prompt_tokens     ` + integer + ` NOT NULL,
	completion_tokens ` + integer + ` NOT NULL,
	estimated         BOOLEAN NOT NULL,
	duration_ns       ` + integer + ` NOT NULL,
	created_at        ` + integer + ` NOT NULL
)`
}

func (d *Driver) migrate(ctx context.Context) error {
	if _, err := d.DB.ExecContext(ctx, createTable(d.dialect)); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Put inserts turn unless a turn with the same ID exists.
func (d *Driver) Put(ctx context.Context, turn *storage.Turn) (bool, error) {
	if err := turn.Validate(); err != nil {
		return false, err
	}

	query, args := entsql.Dialect(d.dialect).
		Insert(turnsTable).
		Columns(columns...).
		Values(
			turn.ID,
			turn.Model,
			turn.Stream,
			turn.StatusCode,
			turn.Prompt,
			turn.Response,
			turn.PromptTokens,
			turn.CompletionTokens,
			turn.Estimated,
			int64(turn.Duration),
			turn.CreatedAt.UnixNano(),
		).
		OnConflict(entsql.ConflictColumns("id"), entsql.DoNothing()).
		Query()

	res, err := d.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("inserting turn %s: %w", turn.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting turn %s: %w", turn.ID, err)
	}
	return n > 0, nil
}

// Get retrieves a turn by its ID.
func (d *Driver) Get(ctx context.Context, id string) (*storage.Turn, error) {
	query, args := entsql.Dialect(d.dialect).
		Select(columns...).
		From(entsql.Table(turnsTable)).
		Where(entsql.EQ("id", id)).
		Limit(1).
		Query()

	turn, err := scanTurn(d.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("getting turn %s: %w", id, err)
	}
	return turn, nil
}

// List returns turns newest first.
func (d *Driver) List(ctx context.Context, opts storage.ListOptions) ([]*storage.Turn, error) {
	selector := entsql.Dialect(d.dialect).
		Select(columns...).
		From(entsql.Table(turnsTable))
	if opts.Model != "" {
		selector.Where(entsql.EQ("model", opts.Model))
	}
	selector.OrderBy(entsql.Desc("created_at"), entsql.Asc("id"))
	if opts.Limit > 0 {
		selector.Limit(opts.Limit)
	}
	query, args := selector.Query()

	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing turns: %w", err)
	}
	defer rows.Close()

	var result []*storage.Turn
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		result = append(result, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing turns: %w", err)
	}
	return result, nil
}

// Close closes the underlying database handle.
func (d *Driver) Close() error {
	return d.DB.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTurn(row scanner) (*storage.Turn, error) {
	var (
		turn      storage.Turn
		duration  int64
		createdAt int64
	)
	err := row.Scan(
		&turn.ID,
		&turn.Model,
		&turn.Stream,
		&turn.StatusCode,
		&turn.Prompt,
		&turn.Response,
		&turn.PromptTokens,
		&turn.CompletionTokens,
		&turn.Estimated,
		&duration,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	turn.Duration = time.Duration(duration)
	turn.CreatedAt = time.Unix(0, createdAt).UTC()
	return &turn, nil
}
