package datasource

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
)

// Session is a connection owned by a single worker. It is not safe for
// concurrent use. ReconnectIfNeeded must succeed before statements run.
type Session struct {
	ds   *DataSource
	conn *sql.Conn
}

// Session returns a worker session. The connection is acquired lazily by
// ReconnectIfNeeded.
func (ds *DataSource) Session() *Session {
	return &Session{ds: ds}
}

// ReconnectIfNeeded pings the session's connection and replaces it with a
// fresh one from the pool when it has gone stale.
func (s *Session) ReconnectIfNeeded(ctx context.Context) error {
	if s.conn != nil {
		err := s.conn.PingContext(ctx)
		if err == nil {
			return nil
		}
		s.ds.logger.Warn().Err(err).Msg("connection lost, reconnecting")
		// Raw returning driver.ErrBadConn drops the connection from the pool.
		_ = s.conn.Raw(func(any) error { return driver.ErrBadConn })
		s.conn.Close()
		s.conn = nil
	}
	conn, err := s.ds.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("%s: acquire connection: %w", s.ds.Label, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("%s: ping: %w", s.ds.Label, err)
	}
	s.conn = conn
	return nil
}

func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *Session) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if s.conn == nil {
		return nil, sql.ErrConnDone
	}
	s.ds.logger.Debug().Str("sql", query).Msg("exec")
	return s.conn.ExecContext(ctx, query, args...)
}

func (s *Session) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if s.conn == nil {
		return nil, sql.ErrConnDone
	}
	s.ds.logger.Debug().Str("sql", query).Msg("query")
	return s.conn.QueryContext(ctx, query, args...)
}

// QueryRowContext acquires the session connection when it has none, since
// *sql.Row cannot carry ErrConnDone. If that fails the pool runs the query
// and its error surfaces from Scan.
func (s *Session) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	if s.conn == nil {
		if err := s.ReconnectIfNeeded(ctx); err != nil {
			s.ds.logger.Debug().Err(err).Msg("no session connection, querying the pool")
			return s.ds.db.QueryRowContext(ctx, query, args...)
		}
	}
	s.ds.logger.Debug().Str("sql", query).Msg("query")
	return s.conn.QueryRowContext(ctx, query, args...)
}

func (s *Session) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	if s.conn == nil {
		return nil, sql.ErrConnDone
	}
	return s.conn.BeginTx(ctx, opts)
}
