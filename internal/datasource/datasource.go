package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"db-sync/internal/dialect"

	"github.com/rs/zerolog"
)

// Querier is the statement surface shared by *sql.DB, *sql.Conn, *sql.Tx and
// Session.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxBeginner is implemented by queriers that are not already inside a
// transaction.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// DataSource is one side of a sync: a connection pool plus its dialect.
type DataSource struct {
	Label   string
	db      *sql.DB
	dialect dialect.Dialect
	logger  zerolog.Logger
}

// Open opens and pings a database.
func Open(ctx context.Context, label, driver, dsn string, logger zerolog.Logger) (*DataSource, error) {
	d, err := dialect.GetDialect(driver)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s db: %w", label, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s db: %w", label, err)
	}
	return New(label, db, d, logger), nil
}

// New wraps an already opened pool.
func New(label string, db *sql.DB, d dialect.Dialect, logger zerolog.Logger) *DataSource {
	return &DataSource{
		Label:   label,
		db:      db,
		dialect: d,
		logger:  logger.With().Str("datasource", label).Logger(),
	}
}

func (ds *DataSource) Dialect() dialect.Dialect { return ds.dialect }

func (ds *DataSource) Close() error { return ds.db.Close() }

func (ds *DataSource) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return ds.db.BeginTx(ctx, opts)
}

func (ds *DataSource) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ds.logger.Debug().Str("sql", query).Msg("exec")
	return ds.db.ExecContext(ctx, query, args...)
}

func (ds *DataSource) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	ds.logger.Debug().Str("sql", query).Msg("query")
	return ds.db.QueryContext(ctx, query, args...)
}

func (ds *DataSource) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	ds.logger.Debug().Str("sql", query).Msg("query")
	return ds.db.QueryRowContext(ctx, query, args...)
}

// Transaction runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (ds *DataSource) Transaction(ctx context.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	return runTx(ctx, ds.db, opts, fn)
}

// WithTx runs fn in a new transaction when q can begin one, otherwise
// directly on q, which is then already transactional.
func WithTx(ctx context.Context, q Querier, fn func(q Querier) error) error {
	b, ok := q.(TxBeginner)
	if !ok {
		return fn(q)
	}
	return runTx(ctx, b, nil, func(tx *sql.Tx) error { return fn(tx) })
}

func runTx(ctx context.Context, b TxBeginner, opts *sql.TxOptions, fn func(tx *sql.Tx) error) (err error) {
	tx, err := b.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
