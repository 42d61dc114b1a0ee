package engine

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"db-sync/internal/datasource"
	"db-sync/internal/dialect"
	"db-sync/internal/schema"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T, label string, ddl ...string) *datasource.DataSource {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), label+".db")+"?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	for _, stmt := range ddl {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return datasource.New(label, db, &dialect.SQLiteDialect{}, zerolog.Nop())
}

func mainTable(name string) schema.TableRef {
	return schema.TableRef{Schema: "main", Name: name}
}

// fakeCopier records every copied table and fails the ones listed.
type fakeCopier struct {
	mu     sync.Mutex
	calls  []schema.TableRef
	fail   map[string]bool
	delay  time.Duration
	notice string
}

func (c *fakeCopier) Copy(ctx context.Context, task *SyncTask, conns Conns) ([]string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, task.Table)
	c.mu.Unlock()

	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	var notices []string
	if c.notice != "" {
		notices = append(notices, c.notice)
	}
	if c.fail[task.Table.Name] {
		return notices, errors.New("copy failed\nwith details")
	}
	return notices, nil
}

func (c *fakeCopier) called() []schema.TableRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]schema.TableRef(nil), c.calls...)
}

// recorder captures listener events and report lines.
type recorder struct {
	mu       sync.Mutex
	started  []schema.TableRef
	finished []schema.TableRef
	warnings []string
	logs     []string
}

func (r *recorder) Registered(schema.TableRef) {}

func (r *recorder) Started(table schema.TableRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, table)
}

func (r *recorder) Finished(table schema.TableRef, result Result, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, table)
}

func (r *recorder) Warn(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, text)
}

func (r *recorder) Log(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, text)
}
