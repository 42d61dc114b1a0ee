package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"db-sync/internal/datasource"
	"db-sync/internal/schema"

	"github.com/rs/zerolog"
)

// Resolver supplies table notes and the destination existence check.
type Resolver interface {
	MissingTables(ctx context.Context, tables []schema.TableRef) ([]schema.TableRef, error)
	Notes(ctx context.Context, tables []schema.TableRef) (map[schema.TableRef][]string, error)
}

// Syncer runs a whole sync: preflight, metadata, relaxation, scheduling and
// failure aggregation.
type Syncer struct {
	Source      *datasource.DataSource
	Destination *datasource.DataSource
	Resolver    Resolver
	Reporter    Reporter
	Listener    Listener
	Platform    Platform
	Logger      zerolog.Logger
}

func (s *Syncer) Run(ctx context.Context, tasks []*SyncTask, opts RunOptions) error {
	tables := make([]schema.TableRef, len(tasks))
	for i, t := range tasks {
		tables[i] = t.Table
	}

	missing, err := s.Resolver.MissingTables(ctx, tables)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return &PreflightError{Missing: missing}
	}

	srcProbe := schema.NewProbe(s.Source.Dialect())
	dstProbe := schema.NewProbe(s.Destination.Dialect())
	if err := s.prepare(ctx, tasks, tables, srcProbe, dstProbe, opts); err != nil {
		return err
	}

	runnable := s.filter(tasks)
	if len(runnable) == 0 {
		s.Logger.Info().Msg("nothing to sync")
		return nil
	}

	if opts.DependencyOrder {
		runnable, err = s.order(ctx, runnable, dstProbe)
		if err != nil {
			return err
		}
	}

	mode, err := SelectMode(opts, func() (bool, error) {
		return dstProbe.IsManagedPlatform(ctx, s.Destination)
	})
	if err != nil {
		return err
	}
	executor := SelectExecutor(opts, mode, s.Platform, s.Logger)
	s.Logger.Info().
		Int("tables", len(runnable)).
		Str("mode", mode.String()).
		Int("workers", executor.Size()).
		Msg("starting sync")

	scheduler := &Scheduler{
		Source:      s.Source,
		Destination: s.Destination,
		Executor:    executor,
		Listener:    s.Listener,
		FailFast:    opts.FailFast,
		Logger:      s.Logger,
	}
	manager := &DeferralManager{
		Source:             s.Source,
		Destination:        s.Destination,
		SourceTxOptions:    s.Source.Dialect().ReadTxOptions(),
		DestinationDialect: s.Destination.Dialect(),
		Probe:              dstProbe,
		Logger:             s.Logger,
	}

	var outcomes []Outcome
	err = manager.Run(ctx, mode, runnable, func(ctx context.Context, conns *Conns) error {
		outcomes = scheduler.Run(ctx, runnable, conns)
		if err := ctx.Err(); err != nil {
			// skipped tasks leave no outcome, so the run is incomplete
			return err
		}
		if conns != nil {
			// a failed task leaves the shared transaction unusable
			return FailureOf(outcomes)
		}
		return nil
	})

	aggErr := Aggregate(outcomes, s.Reporter)
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = errors.Join(ctxErr, err)
	}
	var failedErr *SyncFailedError
	if err != nil && !errors.As(err, &failedErr) {
		return errors.Join(err, aggErr)
	}
	return aggErr
}

// prepare loads every metadata map before any task is touched.
func (s *Syncer) prepare(ctx context.Context, tasks []*SyncTask, tables []schema.TableRef, srcProbe, dstProbe *schema.Probe, opts RunOptions) error {
	fromColumns, err := srcProbe.Columns(ctx, s.Source, tables)
	if err != nil {
		return err
	}
	toColumns, err := dstProbe.Columns(ctx, s.Destination, tables)
	if err != nil {
		return err
	}
	toTriggers, err := dstProbe.Triggers(ctx, s.Destination, tables)
	if err != nil {
		return err
	}
	notes, err := s.Resolver.Notes(ctx, tables)
	if err != nil {
		return err
	}

	for _, t := range tasks {
		t.FromColumns = fromColumns[t.Table]
		t.ToColumns = toColumns[t.Table]
		t.ToTriggers = toTriggers[t.Table]
		t.Notes = append(t.Notes, notes[t.Table]...)
		if opts.DisableUserTriggers {
			t.Opts.DisableUserTriggers = true
		}
		if opts.InBatches {
			t.Opts.InBatches = true
		}
	}
	return nil
}

// filter drops tasks with no shared fields and warns every note.
func (s *Syncer) filter(tasks []*SyncTask) []*SyncTask {
	var runnable []*SyncTask
	for _, t := range tasks {
		notes := t.AllNotes()
		if len(t.SharedFields()) == 0 {
			text := t.Table.String() + ": No fields to copy"
			if len(notes) > 0 {
				text += fmt.Sprintf(" (%s)", strings.Join(notes, "; "))
			}
			s.Reporter.Warn(text)
			continue
		}
		for _, note := range notes {
			s.Reporter.Warn(t.Table.String() + ": " + note)
		}
		runnable = append(runnable, t)
	}
	return runnable
}

func (s *Syncer) order(ctx context.Context, tasks []*SyncTask, dstProbe *schema.Probe) ([]*SyncTask, error) {
	tables := make([]schema.TableRef, len(tasks))
	byTable := make(map[schema.TableRef]*SyncTask, len(tasks))
	for i, t := range tasks {
		tables[i] = t.Table
		byTable[t.Table] = t
	}
	deps, err := dstProbe.Dependencies(ctx, s.Destination, tables)
	if err != nil {
		return nil, err
	}
	sorted := schema.SortByDependencies(tables, deps)
	out := make([]*SyncTask, len(sorted))
	for i, t := range sorted {
		out[i] = byTable[t]
	}
	return out, nil
}
