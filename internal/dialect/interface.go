package dialect

import (
	"database/sql"
	"errors"
)

// ErrUnsupported is returned when a dialect cannot express a statement.
var ErrUnsupported = errors.New("not supported by dialect")

// Dialect abstracts database-specific catalog queries and statements.
//
// Catalog queries take qualified table names ("schema.table") and return the
// query with its arguments. Dialects that cannot filter server side ignore
// the names and return rows for every table; callers filter.
type Dialect interface {
	Name() string

	// Metadata Queries (Schema Introspection)
	TablesQuery() string
	ColumnsQuery(tables []string) (string, []any)
	TriggersQuery(tables []string) (string, []any)
	NonDeferrableConstraintsQuery(tables []string) (string, []any)
	// NonDeferrableReferencesQuery returns the non-deferrable foreign keys
	// declared on other tables that reference the given ones, shaped like
	// NonDeferrableConstraintsQuery. "" means the dialect has no such query.
	NonDeferrableReferencesQuery(tables []string) (string, []any)
	// ForeignKeysQuery returns (schema, table, referenced schema, referenced table).
	ForeignKeysQuery(tables []string) (string, []any)
	// ManagedPlatformQuery returns "" when the dialect has no such probe.
	ManagedPlatformQuery() string

	// ReadTxOptions are the options for a consistent read-only snapshot of
	// the source. nil means driver defaults.
	ReadTxOptions() *sql.TxOptions

	// Integrity relaxation
	SessionReplicaStatement() (string, error)
	DisableTriggerStatement(schema, table, trigger string) (string, error)
	EnableTriggerStatement(schema, table, trigger string) (string, error)
	// SupportsIntegrityTriggers reports whether TriggersQuery reports the
	// triggers that enforce foreign keys.
	SupportsIntegrityTriggers() bool
	DisableIntegrityStatement(schema, table, trigger string) (string, error)
	EnableIntegrityStatement(schema, table, trigger string) (string, error)
	DeferConstraintsStatement() (string, error)
	ImmediateConstraintsStatement() (string, error)
	AlterConstraintStatement(schema, table, constraint string, deferrable bool) (string, error)

	// Query Generation
	QuoteIdent(name string) string
	QualifiedTable(schema, table string) string
	Placeholder(index int) string // Returns ?, $1, @p1, etc.
	InsertQuery(table string, cols []string) string
	LimitQuery(query string, limit int) string
	DefaultSchema() string
}
