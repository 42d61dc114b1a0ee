package engine

import (
	"context"
	"database/sql"
	"fmt"

	"db-sync/internal/dialect"
	"db-sync/internal/schema"

	"github.com/rs/zerolog"
)

// DeferralMode is the integrity relaxation applied for a whole run.
type DeferralMode int

const (
	ModeNone DeferralMode = iota
	ModeSessionReplica
	ModeDisableTriggers
	ModeDeferSimple
	ModeDeferForce
)

func (m DeferralMode) String() string {
	switch m {
	case ModeSessionReplica:
		return "session_replica"
	case ModeDisableTriggers:
		return "disable_triggers"
	case ModeDeferSimple:
		return "defer_simple"
	case ModeDeferForce:
		return "defer_force"
	default:
		return "none"
	}
}

// SelectMode picks the relaxation mode. isManaged is consulted only when
// disableIntegrity is requested without the V2 variant.
func SelectMode(opts RunOptions, isManaged func() (bool, error)) (DeferralMode, error) {
	switch {
	case opts.DisableIntegrity || opts.DisableIntegrityV2:
		if opts.DisableIntegrityV2 {
			return ModeSessionReplica, nil
		}
		managed, err := isManaged()
		if err != nil {
			return ModeNone, err
		}
		if managed {
			return ModeSessionReplica, nil
		}
		return ModeDisableTriggers, nil
	case opts.DeferConstraintsV2:
		return ModeDeferForce, nil
	case opts.DeferConstraints:
		return ModeDeferSimple, nil
	default:
		return ModeNone, nil
	}
}

// Transactor opens transactions; *datasource.DataSource implements it.
type Transactor interface {
	Transaction(ctx context.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error
}

// Body runs the tasks. conns is nil when no relaxation is active.
type Body func(ctx context.Context, conns *Conns) error

// DeferralManager applies a relaxation mode inside a destination transaction
// that wraps a source transaction that wraps the body.
type DeferralManager struct {
	Source             Transactor
	Destination        Transactor
	SourceTxOptions    *sql.TxOptions
	DestinationDialect dialect.Dialect
	// Probe reads non-deferrable constraints of the destination.
	Probe  *schema.Probe
	Logger zerolog.Logger
}

// Run executes body under mode. Restoration only runs after the body
// succeeds; on failure the rollback discards every change made here.
func (m *DeferralManager) Run(ctx context.Context, mode DeferralMode, tasks []*SyncTask, body Body) error {
	if mode == ModeNone {
		return body(ctx, nil)
	}

	return m.Destination.Transaction(ctx, nil, func(dst *sql.Tx) error {
		restore, err := m.apply(ctx, dst, mode, tasks)
		if err != nil {
			return err
		}

		err = m.Source.Transaction(ctx, m.SourceTxOptions, func(src *sql.Tx) error {
			return body(ctx, &Conns{Source: src, Destination: dst, Transactional: true})
		})
		if err != nil {
			return err
		}

		for _, stmt := range restore {
			if err := m.exec(ctx, dst, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

// apply issues the relaxation statements and returns the statements that
// undo them, in execution order.
func (m *DeferralManager) apply(ctx context.Context, dst *sql.Tx, mode DeferralMode, tasks []*SyncTask) ([]string, error) {
	d := m.DestinationDialect
	var restore []string

	switch mode {
	case ModeSessionReplica:
		stmt, err := d.SessionReplicaStatement()
		if err != nil {
			return nil, err
		}
		if err := m.exec(ctx, dst, stmt); err != nil {
			return nil, err
		}

	case ModeDisableTriggers:
		if !d.SupportsIntegrityTriggers() {
			return nil, fmt.Errorf("%s: disabling integrity triggers %w", d.Name(), dialect.ErrUnsupported)
		}
		for _, task := range tasks {
			for _, tr := range task.IntegrityTriggers() {
				disable, err := d.DisableIntegrityStatement(task.Table.Schema, task.Table.Name, tr.Name)
				if err != nil {
					return nil, err
				}
				enable, err := d.EnableIntegrityStatement(task.Table.Schema, task.Table.Name, tr.Name)
				if err != nil {
					return nil, err
				}
				if err := m.exec(ctx, dst, disable); err != nil {
					return nil, err
				}
				restore = append(restore, enable)
			}
		}

	case ModeDeferSimple:
		stmt, err := d.DeferConstraintsStatement()
		if err != nil {
			return nil, err
		}
		if err := m.exec(ctx, dst, stmt); err != nil {
			return nil, err
		}

	case ModeDeferForce:
		forced, err := m.nonDeferrable(ctx, dst, tasks)
		if err != nil {
			return nil, err
		}

		var undo []string
		for _, c := range forced {
			stmt, err := d.AlterConstraintStatement(c.Table.Schema, c.Table.Name, c.Name, true)
			if err != nil {
				return nil, err
			}
			back, err := d.AlterConstraintStatement(c.Table.Schema, c.Table.Name, c.Name, false)
			if err != nil {
				return nil, err
			}
			if err := m.exec(ctx, dst, stmt); err != nil {
				return nil, err
			}
			undo = append(undo, back)
		}

		deferStmt, err := d.DeferConstraintsStatement()
		if err != nil {
			return nil, err
		}
		immediate, err := d.ImmediateConstraintsStatement()
		if err != nil {
			return nil, err
		}
		if err := m.exec(ctx, dst, deferStmt); err != nil {
			return nil, err
		}
		restore = append([]string{immediate}, undo...)

	default:
		return nil, fmt.Errorf("unknown deferral mode %d", mode)
	}

	return restore, nil
}

// nonDeferrable lists the non-deferrable foreign keys that can block the
// run: those declared on the task tables, in task order, then those on other
// tables that reference them.
func (m *DeferralManager) nonDeferrable(ctx context.Context, dst *sql.Tx, tasks []*SyncTask) ([]schema.ConstraintRef, error) {
	tables := make([]schema.TableRef, len(tasks))
	for i, task := range tasks {
		tables[i] = task.Table
	}
	byTable, err := m.Probe.NonDeferrableConstraints(ctx, dst, tables)
	if err != nil {
		return nil, err
	}
	var out []schema.ConstraintRef
	for _, t := range tables {
		for _, name := range byTable[t] {
			out = append(out, schema.ConstraintRef{Table: t, Name: name})
		}
	}
	inbound, err := m.Probe.NonDeferrableReferences(ctx, dst, tables)
	if err != nil {
		return nil, err
	}
	return append(out, inbound...), nil
}

func (m *DeferralManager) exec(ctx context.Context, tx *sql.Tx, stmt string) error {
	m.Logger.Debug().Str("sql", stmt).Msg("relaxation")
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("%s: %w", stmt, err)
	}
	return nil
}
