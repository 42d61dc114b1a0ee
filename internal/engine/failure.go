package engine

import "db-sync/internal/schema"

// Aggregate warns every notice in completion order, then returns a
// SyncFailedError naming the failed tables, if any.
func Aggregate(outcomes []Outcome, reporter Reporter) error {
	for _, o := range outcomes {
		for _, notice := range o.Result.Notices {
			reporter.Warn(o.Task.Table.String() + ": " + notice)
		}
	}
	return FailureOf(outcomes)
}

// FailureOf returns the consolidated error for outcomes, or nil.
func FailureOf(outcomes []Outcome) error {
	var failed []schema.TableRef
	for _, o := range outcomes {
		if o.Result.Failed() {
			failed = append(failed, o.Task.Table)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &SyncFailedError{Tables: failed}
}
