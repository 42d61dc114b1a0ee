package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"db-sync/internal/datasource"
	"db-sync/internal/dialect"
	"db-sync/internal/schema"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	parentDDL = `CREATE TABLE b (id INTEGER PRIMARY KEY, name TEXT)`
	childDDL  = `CREATE TABLE a (id INTEGER PRIMARY KEY, b_id INTEGER NOT NULL REFERENCES b(id))`
)

type syncFixture struct {
	src    *datasource.DataSource
	dst    *datasource.DataSource
	rec    *recorder
	syncer *Syncer
	copier *TableCopier
}

func newSyncFixture(t *testing.T, srcDDL, dstDDL []string) *syncFixture {
	t.Helper()
	src := openSQLite(t, "source", srcDDL...)
	dst := openSQLite(t, "destination", dstDDL...)
	rec := &recorder{}
	return &syncFixture{
		src: src,
		dst: dst,
		rec: rec,
		syncer: &Syncer{
			Source:      src,
			Destination: dst,
			Resolver:    schema.NewCatalogResolver(src, schema.NewProbe(src.Dialect()), dst, schema.NewProbe(dst.Dialect())),
			Reporter:    rec,
			Listener:    rec,
			Platform:    Platform{ForkCapable: true, DefaultJobs: 4},
			Logger:      zerolog.Nop(),
		},
		copier: &TableCopier{Source: &dialect.SQLiteDialect{}, Destination: &dialect.SQLiteDialect{}, Logger: zerolog.Nop()},
	}
}

func (f *syncFixture) tasks(names ...string) []*SyncTask {
	return newTasks(f.copier, names...)
}

func count(t *testing.T, ds *datasource.DataSource, table string) int {
	t.Helper()
	var n int
	require.NoError(t, ds.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func seedParentChild(t *testing.T) *syncFixture {
	t.Helper()
	f := newSyncFixture(t,
		[]string{parentDDL, childDDL,
			`INSERT INTO b (id, name) VALUES (1, 'one'), (2, 'two')`,
			`INSERT INTO a (id, b_id) VALUES (10, 1), (20, 2)`},
		[]string{parentDDL, childDDL})
	return f
}

func TestSyncerDeferredConstraintsCommitOutOfOrder(t *testing.T) {
	f := seedParentChild(t)

	err := f.syncer.Run(context.Background(), f.tasks("a", "b"), RunOptions{DeferConstraints: true})

	require.NoError(t, err)
	assert.Equal(t, 2, count(t, f.dst, "a"))
	assert.Equal(t, 2, count(t, f.dst, "b"))
}

func TestSyncerWithoutDeferralFailsReferencingTable(t *testing.T) {
	f := seedParentChild(t)

	err := f.syncer.Run(context.Background(), f.tasks("a", "b"), RunOptions{})

	var failed *SyncFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, []schema.TableRef{mainTable("a")}, failed.Tables)
	assert.EqualError(t, err, "Sync failed for 1 table: main.a")
	assert.Equal(t, 0, count(t, f.dst, "a"))
	assert.Equal(t, 2, count(t, f.dst, "b"))
}

func TestSyncerDependencyOrder(t *testing.T) {
	f := seedParentChild(t)

	err := f.syncer.Run(context.Background(), f.tasks("a", "b"), RunOptions{DependencyOrder: true})

	require.NoError(t, err)
	assert.Equal(t, []schema.TableRef{mainTable("b"), mainTable("a")}, f.rec.started)
	assert.Equal(t, 2, count(t, f.dst, "a"))
}

func TestSyncerDeferredFailureRollsBackEverything(t *testing.T) {
	f := newSyncFixture(t,
		[]string{parentDDL, childDDL,
			`INSERT INTO b (id, name) VALUES (1, 'one')`,
			`INSERT INTO a (id, b_id) VALUES (10, 1)`},
		[]string{parentDDL, childDDL, `CREATE TABLE c (id INTEGER PRIMARY KEY)`})
	_, err := f.src.ExecContext(context.Background(), `CREATE TABLE c (id INTEGER PRIMARY KEY, v TEXT)`)
	require.NoError(t, err)

	tasks := append(f.tasks("b", "a"), NewSyncTask(mainTable("c"), TaskOptions{}, copierFunc(
		func(context.Context, *SyncTask, Conns) ([]string, error) { return nil, errors.New("broken") })))

	err = f.syncer.Run(context.Background(), tasks, RunOptions{DeferConstraints: true})

	assert.EqualError(t, err, "Sync failed for 1 table: main.c")
	assert.Equal(t, 0, count(t, f.dst, "a"))
	assert.Equal(t, 0, count(t, f.dst, "b"))
}

func TestSyncerExcludesTaskWithoutSharedFields(t *testing.T) {
	f := newSyncFixture(t,
		[]string{`CREATE TABLE x (p INTEGER)`, `CREATE TABLE y (id INTEGER)`, `INSERT INTO y VALUES (1)`},
		[]string{`CREATE TABLE x (q INTEGER)`, `CREATE TABLE y (id INTEGER)`})
	copier := &fakeCopier{}

	err := f.syncer.Run(context.Background(), newTasks(copier, "x", "y"), RunOptions{})

	require.NoError(t, err)
	assert.Equal(t, []schema.TableRef{mainTable("y")}, copier.called())

	var forX []string
	for _, w := range f.rec.warnings {
		if strings.HasPrefix(w, "main.x:") {
			forX = append(forX, w)
		}
	}
	require.Len(t, forX, 1)
	assert.Equal(t, "main.x: No fields to copy (Extra columns: q; Missing columns: p)", forX[0])
}

func TestSyncerPreflight(t *testing.T) {
	f := newSyncFixture(t,
		[]string{`CREATE TABLE x (id INTEGER)`, `CREATE TABLE ghost (id INTEGER)`},
		[]string{`CREATE TABLE x (id INTEGER)`})
	copier := &fakeCopier{}

	err := f.syncer.Run(context.Background(), newTasks(copier, "x", "ghost"), RunOptions{})

	var preflight *PreflightError
	require.True(t, errors.As(err, &preflight))
	assert.EqualError(t, err, "Table not found in destination: main.ghost")
	assert.Empty(t, copier.called())
}

func TestSyncerNoticesAfterRun(t *testing.T) {
	f := newSyncFixture(t,
		[]string{`CREATE TABLE x (id INTEGER, extra TEXT)`},
		[]string{`CREATE TABLE x (id INTEGER)`})

	err := f.syncer.Run(context.Background(), f.tasks("x"), RunOptions{})

	require.NoError(t, err)
	assert.Equal(t, []string{"main.x: Missing columns: extra", "main.x: Source table is empty"}, f.rec.warnings)
}

func TestSyncerCancelledRunIsNotSuccess(t *testing.T) {
	f := newSyncFixture(t,
		[]string{`CREATE TABLE x (id INTEGER)`, `CREATE TABLE y (id INTEGER)`, `INSERT INTO y VALUES (1)`},
		[]string{`CREATE TABLE x (id INTEGER)`, `CREATE TABLE y (id INTEGER)`})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var copied []string
	copier := copierFunc(func(ctx context.Context, task *SyncTask, conns Conns) ([]string, error) {
		copied = append(copied, task.Table.Name)
		if task.Table.Name == "x" {
			cancel()
			return nil, nil
		}
		return f.copier.Copy(ctx, task, conns)
	})

	err := f.syncer.Run(ctx, newTasks(copier, "x", "y"), RunOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"x"}, copied)
	assert.Equal(t, 0, count(t, f.dst, "y"))
}

func TestSyncerCancelledDeferredRunRollsBack(t *testing.T) {
	f := seedParentChild(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	copier := copierFunc(func(ctx context.Context, task *SyncTask, conns Conns) ([]string, error) {
		notices, err := f.copier.Copy(ctx, task, conns)
		cancel()
		return notices, err
	})

	err := f.syncer.Run(ctx, newTasks(copier, "b", "a"), RunOptions{DeferConstraints: true})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, count(t, f.dst, "b"))
	assert.Equal(t, 0, count(t, f.dst, "a"))
}
