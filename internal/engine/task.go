package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"db-sync/internal/datasource"
	"db-sync/internal/schema"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Result is the outcome of one task.
type Result struct {
	Status  Status
	Message string
	Notices []string
	Err     error
}

func (r Result) Failed() bool { return r.Status == StatusFailure }

// Conns is the connection pair a task copies through. When Transactional is
// set both queriers are the coordinator's open transactions.
type Conns struct {
	Source        datasource.Querier
	Destination   datasource.Querier
	Transactional bool
}

// destinationTx runs fn in its own destination transaction unless the
// destination is already a shared transaction.
func (c Conns) destinationTx(ctx context.Context, fn func(dst datasource.Querier) error) error {
	if c.Transactional {
		return fn(c.Destination)
	}
	return datasource.WithTx(ctx, c.Destination, fn)
}

// Copier transfers the rows of one table.
type Copier interface {
	Copy(ctx context.Context, task *SyncTask, conns Conns) (notices []string, err error)
}

// SyncTask is the unit of work for one table. Metadata fields are filled
// before dispatch and read-only afterwards.
type SyncTask struct {
	Table       schema.TableRef
	FromColumns []schema.Column
	ToColumns   []schema.Column
	ToTriggers  []schema.Trigger
	Notes       []string
	Opts        TaskOptions

	copier Copier
}

func NewSyncTask(table schema.TableRef, opts TaskOptions, copier Copier) *SyncTask {
	return &SyncTask{Table: table, Opts: opts, copier: copier}
}

// SharedFields returns the columns present on both sides, in destination order.
func (t *SyncTask) SharedFields() []string {
	from := make(map[string]bool, len(t.FromColumns))
	for _, c := range t.FromColumns {
		from[c.Name] = true
	}
	var shared []string
	for _, c := range t.ToColumns {
		if from[c.Name] {
			shared = append(shared, c.Name)
		}
	}
	return shared
}

// IntegrityTriggers are the destination triggers enforcing constraints.
func (t *SyncTask) IntegrityTriggers() []schema.Trigger {
	var out []schema.Trigger
	for _, tr := range t.ToTriggers {
		if tr.IsIntegrity() {
			out = append(out, tr)
		}
	}
	return out
}

func (t *SyncTask) UserTriggers() []schema.Trigger {
	var out []schema.Trigger
	for _, tr := range t.ToTriggers {
		if tr.IsUser() {
			out = append(out, tr)
		}
	}
	return out
}

// AllNotes returns resolver notes followed by column differences.
func (t *SyncTask) AllNotes() []string {
	notes := append([]string(nil), t.Notes...)
	if len(t.FromColumns) == 0 || len(t.ToColumns) == 0 {
		return notes
	}

	fromTypes := make(map[string]string, len(t.FromColumns))
	for _, c := range t.FromColumns {
		fromTypes[c.Name] = c.Type
	}
	toTypes := make(map[string]string, len(t.ToColumns))
	for _, c := range t.ToColumns {
		toTypes[c.Name] = c.Type
	}

	var extra, missing, different []string
	for _, c := range t.ToColumns {
		if _, ok := fromTypes[c.Name]; !ok {
			extra = append(extra, c.Name)
		}
	}
	for _, c := range t.FromColumns {
		toType, ok := toTypes[c.Name]
		if !ok {
			missing = append(missing, c.Name)
		} else if toType != c.Type {
			different = append(different, fmt.Sprintf("%s (%s -> %s)", c.Name, c.Type, toType))
		}
	}
	sort.Strings(extra)
	sort.Strings(missing)

	if len(extra) > 0 {
		notes = append(notes, "Extra columns: "+strings.Join(extra, ", "))
	}
	if len(missing) > 0 {
		notes = append(notes, "Missing columns: "+strings.Join(missing, ", "))
	}
	if len(different) > 0 {
		notes = append(notes, "Different column types: "+strings.Join(different, ", "))
	}
	return notes
}

// Perform runs the copy. Errors and panics are captured in the result.
func (t *SyncTask) Perform(ctx context.Context, conns Conns) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = failed(t.Table, fmt.Errorf("panic: %v", p), nil)
		}
	}()

	notices, err := t.copier.Copy(ctx, t, conns)
	if err != nil {
		return failed(t.Table, err, notices)
	}
	return Result{Status: StatusSuccess, Notices: notices}
}

func failed(table schema.TableRef, err error, notices []string) Result {
	taskErr := &TaskError{Table: table, Err: err}
	return Result{
		Status:  StatusFailure,
		Message: taskErr.Error(),
		Notices: notices,
		Err:     taskErr,
	}
}
