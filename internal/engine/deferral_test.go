package engine

import (
	"context"
	"errors"
	"testing"

	"db-sync/internal/datasource"
	"db-sync/internal/dialect"
	"db-sync/internal/schema"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectMode(t *testing.T) {
	managed := func() (bool, error) { return true, nil }
	unmanaged := func() (bool, error) { return false, nil }
	neverCalled := func() (bool, error) {
		t.Error("managed platform probed")
		return false, nil
	}

	tests := []struct {
		name      string
		opts      RunOptions
		isManaged func() (bool, error)
		want      DeferralMode
	}{
		{"none", RunOptions{}, neverCalled, ModeNone},
		{"disable integrity on managed platform", RunOptions{DisableIntegrity: true}, managed, ModeSessionReplica},
		{"disable integrity self hosted", RunOptions{DisableIntegrity: true}, unmanaged, ModeDisableTriggers},
		{"disable integrity v2", RunOptions{DisableIntegrityV2: true}, neverCalled, ModeSessionReplica},
		{"defer constraints", RunOptions{DeferConstraints: true}, neverCalled, ModeDeferSimple},
		{"defer constraints v2", RunOptions{DeferConstraintsV2: true}, neverCalled, ModeDeferForce},
		{"v2 wins", RunOptions{DeferConstraints: true, DeferConstraintsV2: true}, neverCalled, ModeDeferForce},
		{"integrity wins over defer", RunOptions{DisableIntegrityV2: true, DeferConstraints: true}, neverCalled, ModeSessionReplica},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, err := SelectMode(tt.opts, tt.isManaged)
			require.NoError(t, err)
			assert.Equal(t, tt.want, mode)
		})
	}

	t.Run("probe error", func(t *testing.T) {
		_, err := SelectMode(RunOptions{DisableIntegrity: true}, func() (bool, error) { return false, errors.New("boom") })
		assert.EqualError(t, err, "boom")
	})
}

type mockPair struct {
	manager *DeferralManager
	src     sqlmock.Sqlmock
	dst     sqlmock.Sqlmock
}

func newMockPair(t *testing.T) *mockPair {
	t.Helper()
	srcDB, src, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	dstDB, dst, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		srcDB.Close()
		dstDB.Close()
	})

	d := &dialect.PostgresDialect{}
	return &mockPair{
		manager: &DeferralManager{
			Source:             datasource.New("source", srcDB, d, zerolog.Nop()),
			Destination:        datasource.New("destination", dstDB, d, zerolog.Nop()),
			DestinationDialect: d,
			Probe:              schema.NewProbe(d),
			Logger:             zerolog.Nop(),
		},
		src: src,
		dst: dst,
	}
}

func (p *mockPair) verify(t *testing.T) {
	t.Helper()
	assert.NoError(t, p.src.ExpectationsWereMet())
	assert.NoError(t, p.dst.ExpectationsWereMet())
}

func publicTask(name string, triggers ...schema.Trigger) *SyncTask {
	task := NewSyncTask(schema.TableRef{Schema: "public", Name: name}, TaskOptions{}, nil)
	task.ToTriggers = triggers
	return task
}

func integrityTrigger(name string) schema.Trigger {
	return schema.Trigger{Name: name, Enabled: true, Internal: true, TiedToConstraint: true}
}

func TestDeferralNoneRunsWithoutTransaction(t *testing.T) {
	p := newMockPair(t)

	var got *Conns
	called := false
	err := p.manager.Run(context.Background(), ModeNone, nil, func(ctx context.Context, conns *Conns) error {
		called = true
		got = conns
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
	assert.Nil(t, got)
	p.verify(t)
}

func TestDeferralSessionReplica(t *testing.T) {
	p := newMockPair(t)
	p.dst.ExpectBegin()
	p.dst.ExpectExec("SET LOCAL session_replication_role = replica").WillReturnResult(sqlmock.NewResult(0, 0))
	p.src.ExpectBegin()
	p.src.ExpectCommit()
	p.dst.ExpectCommit()

	err := p.manager.Run(context.Background(), ModeSessionReplica, []*SyncTask{publicTask("users")}, func(ctx context.Context, conns *Conns) error {
		require.NotNil(t, conns)
		assert.True(t, conns.Transactional)
		return nil
	})

	require.NoError(t, err)
	p.verify(t)
}

func TestDeferralDisableTriggers(t *testing.T) {
	tasks := []*SyncTask{
		publicTask("orders", integrityTrigger("RI_ConstraintTrigger_c_1"), schema.Trigger{Name: "audit", Enabled: true}),
		publicTask("items", integrityTrigger("RI_ConstraintTrigger_c_2")),
	}

	t.Run("restores after success", func(t *testing.T) {
		p := newMockPair(t)
		p.dst.ExpectBegin()
		p.dst.ExpectExec(`ALTER TABLE "public"."orders" DISABLE TRIGGER "RI_ConstraintTrigger_c_1"`).WillReturnResult(sqlmock.NewResult(0, 0))
		p.dst.ExpectExec(`ALTER TABLE "public"."items" DISABLE TRIGGER "RI_ConstraintTrigger_c_2"`).WillReturnResult(sqlmock.NewResult(0, 0))
		p.src.ExpectBegin()
		p.src.ExpectCommit()
		p.dst.ExpectExec(`ALTER TABLE "public"."orders" ENABLE TRIGGER "RI_ConstraintTrigger_c_1"`).WillReturnResult(sqlmock.NewResult(0, 0))
		p.dst.ExpectExec(`ALTER TABLE "public"."items" ENABLE TRIGGER "RI_ConstraintTrigger_c_2"`).WillReturnResult(sqlmock.NewResult(0, 0))
		p.dst.ExpectCommit()

		err := p.manager.Run(context.Background(), ModeDisableTriggers, tasks, func(context.Context, *Conns) error { return nil })

		require.NoError(t, err)
		p.verify(t)
	})

	t.Run("rolls back without restoring on failure", func(t *testing.T) {
		p := newMockPair(t)
		p.dst.ExpectBegin()
		p.dst.ExpectExec(`ALTER TABLE "public"."orders" DISABLE TRIGGER "RI_ConstraintTrigger_c_1"`).WillReturnResult(sqlmock.NewResult(0, 0))
		p.dst.ExpectExec(`ALTER TABLE "public"."items" DISABLE TRIGGER "RI_ConstraintTrigger_c_2"`).WillReturnResult(sqlmock.NewResult(0, 0))
		p.src.ExpectBegin()
		p.src.ExpectRollback()
		p.dst.ExpectRollback()

		bodyErr := &SyncFailedError{Tables: []schema.TableRef{{Schema: "public", Name: "items"}}}
		err := p.manager.Run(context.Background(), ModeDisableTriggers, tasks, func(context.Context, *Conns) error { return bodyErr })

		assert.ErrorIs(t, err, bodyErr)
		p.verify(t)
	})
}

func TestDeferralDeferSimple(t *testing.T) {
	p := newMockPair(t)
	p.dst.ExpectBegin()
	p.dst.ExpectExec("SET CONSTRAINTS ALL DEFERRED").WillReturnResult(sqlmock.NewResult(0, 0))
	p.src.ExpectBegin()
	p.src.ExpectCommit()
	p.dst.ExpectCommit()

	err := p.manager.Run(context.Background(), ModeDeferSimple, []*SyncTask{publicTask("users")}, func(context.Context, *Conns) error { return nil })

	require.NoError(t, err)
	p.verify(t)
}

func TestDeferralDeferForceRestoresConstraints(t *testing.T) {
	p := newMockPair(t)
	tasks := []*SyncTask{publicTask("orders"), publicTask("items")}
	ownQuery, _ := (&dialect.PostgresDialect{}).NonDeferrableConstraintsQuery(nil)
	inboundQuery, _ := (&dialect.PostgresDialect{}).NonDeferrableReferencesQuery(nil)

	p.dst.ExpectBegin()
	p.dst.ExpectQuery(ownQuery).WithArgs(sqlmock.AnyArg()).WillReturnRows(
		sqlmock.NewRows([]string{"schema", "table", "constraint_name"}).
			AddRow("public", "items", "items_order_fk").
			AddRow("public", "orders", "orders_user_fk").
			AddRow("public", "other", "ignored_fk"))
	p.dst.ExpectQuery(inboundQuery).WithArgs(sqlmock.AnyArg()).WillReturnRows(
		sqlmock.NewRows([]string{"schema", "table", "constraint_name"}).
			AddRow("audit", "order_log", "order_log_order_fk"))
	p.dst.ExpectExec(`ALTER TABLE "public"."orders" ALTER CONSTRAINT "orders_user_fk" DEFERRABLE`).WillReturnResult(sqlmock.NewResult(0, 0))
	p.dst.ExpectExec(`ALTER TABLE "public"."items" ALTER CONSTRAINT "items_order_fk" DEFERRABLE`).WillReturnResult(sqlmock.NewResult(0, 0))
	p.dst.ExpectExec(`ALTER TABLE "audit"."order_log" ALTER CONSTRAINT "order_log_order_fk" DEFERRABLE`).WillReturnResult(sqlmock.NewResult(0, 0))
	p.dst.ExpectExec("SET CONSTRAINTS ALL DEFERRED").WillReturnResult(sqlmock.NewResult(0, 0))
	p.src.ExpectBegin()
	p.src.ExpectCommit()
	p.dst.ExpectExec("SET CONSTRAINTS ALL IMMEDIATE").WillReturnResult(sqlmock.NewResult(0, 0))
	p.dst.ExpectExec(`ALTER TABLE "public"."orders" ALTER CONSTRAINT "orders_user_fk" NOT DEFERRABLE`).WillReturnResult(sqlmock.NewResult(0, 0))
	p.dst.ExpectExec(`ALTER TABLE "public"."items" ALTER CONSTRAINT "items_order_fk" NOT DEFERRABLE`).WillReturnResult(sqlmock.NewResult(0, 0))
	p.dst.ExpectExec(`ALTER TABLE "audit"."order_log" ALTER CONSTRAINT "order_log_order_fk" NOT DEFERRABLE`).WillReturnResult(sqlmock.NewResult(0, 0))
	p.dst.ExpectCommit()

	err := p.manager.Run(context.Background(), ModeDeferForce, tasks, func(context.Context, *Conns) error { return nil })

	require.NoError(t, err)
	p.verify(t)
}

func TestDeferralApplyFailureSkipsBody(t *testing.T) {
	p := newMockPair(t)
	p.dst.ExpectBegin()
	p.dst.ExpectExec("SET LOCAL session_replication_role = replica").WillReturnError(errors.New("permission denied"))
	p.dst.ExpectRollback()

	err := p.manager.Run(context.Background(), ModeSessionReplica, nil, func(context.Context, *Conns) error {
		t.Fatal("body ran")
		return nil
	})

	assert.ErrorContains(t, err, "permission denied")
	p.verify(t)
}

func TestDeferralUnsupportedDialect(t *testing.T) {
	p := newMockPair(t)
	p.manager.DestinationDialect = &dialect.MysqlDialect{}
	p.dst.ExpectBegin()
	p.dst.ExpectRollback()

	err := p.manager.Run(context.Background(), ModeSessionReplica, nil, func(context.Context, *Conns) error { return nil })

	assert.ErrorIs(t, err, dialect.ErrUnsupported)
	p.verify(t)
}

func TestDeferralDisableTriggersNeedsIntegrityTriggers(t *testing.T) {
	tasks := []*SyncTask{publicTask("orders", integrityTrigger("orders_user_fk"))}

	for _, d := range []dialect.Dialect{&dialect.MysqlDialect{}, &dialect.OracleDialect{}, &dialect.SQLiteDialect{}} {
		t.Run(d.Name(), func(t *testing.T) {
			p := newMockPair(t)
			p.manager.DestinationDialect = d
			p.dst.ExpectBegin()
			p.dst.ExpectRollback()

			err := p.manager.Run(context.Background(), ModeDisableTriggers, tasks, func(context.Context, *Conns) error {
				t.Error("body ran")
				return nil
			})

			assert.ErrorIs(t, err, dialect.ErrUnsupported)
			p.verify(t)
		})
	}
}

func TestDeferralDisableTriggersSQLServerConstraints(t *testing.T) {
	p := newMockPair(t)
	p.manager.DestinationDialect = &dialect.MSSQLDialect{}
	tasks := []*SyncTask{
		NewSyncTask(schema.TableRef{Schema: "dbo", Name: "orders"}, TaskOptions{}, nil),
	}
	tasks[0].ToTriggers = []schema.Trigger{integrityTrigger("FK_orders_users"), {Name: "trg_audit", Enabled: true}}

	p.dst.ExpectBegin()
	p.dst.ExpectExec("ALTER TABLE [dbo].[orders] NOCHECK CONSTRAINT [FK_orders_users]").WillReturnResult(sqlmock.NewResult(0, 0))
	p.src.ExpectBegin()
	p.src.ExpectCommit()
	p.dst.ExpectExec("ALTER TABLE [dbo].[orders] CHECK CONSTRAINT [FK_orders_users]").WillReturnResult(sqlmock.NewResult(0, 0))
	p.dst.ExpectCommit()

	err := p.manager.Run(context.Background(), ModeDisableTriggers, tasks, func(context.Context, *Conns) error { return nil })

	require.NoError(t, err)
	p.verify(t)
}

func TestDeferralManagedPlatformUsesSessionReplica(t *testing.T) {
	p := newMockPair(t)
	d := &dialect.PostgresDialect{}
	tasks := []*SyncTask{
		publicTask("orders", integrityTrigger("RI_ConstraintTrigger_c_1")),
		publicTask("items", integrityTrigger("RI_ConstraintTrigger_c_2")),
	}
	ctx := context.Background()

	// The settings lookup runs on the pool, outside the run transaction.
	p.dst.ExpectQuery(d.ManagedPlatformQuery()).WillReturnRows(
		sqlmock.NewRows([]string{"name", "setting"}).AddRow("rds.extensions", "pg_stat_statements"))
	p.dst.ExpectBegin()
	p.dst.ExpectExec("SET LOCAL session_replication_role = replica").WillReturnResult(sqlmock.NewResult(0, 0))
	p.src.ExpectBegin()
	p.src.ExpectCommit()
	p.dst.ExpectCommit()

	dst := p.manager.Destination.(*datasource.DataSource)
	mode, err := SelectMode(RunOptions{DisableIntegrity: true}, func() (bool, error) {
		return p.manager.Probe.IsManagedPlatform(ctx, dst)
	})
	require.NoError(t, err)
	require.Equal(t, ModeSessionReplica, mode)

	// Any DISABLE TRIGGER statement would be an unexpected exec.
	err = p.manager.Run(ctx, mode, tasks, func(context.Context, *Conns) error { return nil })

	require.NoError(t, err)
	p.verify(t)
}
