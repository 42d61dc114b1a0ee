package engine

import (
	"fmt"
	"strings"

	"db-sync/internal/schema"
)

// PreflightError reports destination tables that do not exist.
type PreflightError struct {
	Missing []schema.TableRef
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("Table%s not found in destination: %s", plural(len(e.Missing)), joinTables(e.Missing))
}

// TaskError is a single table's copy failure.
type TaskError struct {
	Table schema.TableRef
	Err   error
}

func (e *TaskError) Error() string { return e.Err.Error() }

func (e *TaskError) Unwrap() error { return e.Err }

// SyncFailedError is raised once at the end of a run when any task failed.
type SyncFailedError struct {
	Tables []schema.TableRef
}

func (e *SyncFailedError) Error() string {
	return fmt.Sprintf("Sync failed for %d table%s: %s", len(e.Tables), plural(len(e.Tables)), joinTables(e.Tables))
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func joinTables(tables []schema.TableRef) string {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.String()
	}
	return strings.Join(names, ", ")
}
