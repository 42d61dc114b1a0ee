package dialect

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

type PostgresDialect struct{}

func (d *PostgresDialect) Name() string { return "postgres" }

func (d *PostgresDialect) DefaultSchema() string { return "public" }

func (d *PostgresDialect) TablesQuery() string {
	return `SELECT table_schema, table_name FROM information_schema.tables WHERE table_type = 'BASE TABLE' AND table_schema NOT IN ('information_schema', 'pg_catalog') ORDER BY 1, 2`
}

func (d *PostgresDialect) ColumnsQuery(tables []string) (string, []any) {
	return `SELECT
    table_schema AS schema,
    table_name AS table,
    column_name AS column,
    data_type AS type
FROM information_schema.columns
WHERE table_schema || '.' || table_name = ANY($1)
ORDER BY 1, 2, 3`, []any{pq.Array(tables)}
}

func (d *PostgresDialect) TriggersQuery(tables []string) (string, []any) {
	return `SELECT
    n.nspname AS schema,
    c.relname AS table,
    t.tgname AS name,
    t.tgisinternal AS internal,
    t.tgenabled != 'D' AS enabled,
    t.tgconstraint != 0 AS integrity
FROM pg_catalog.pg_trigger t
INNER JOIN pg_catalog.pg_class c ON t.tgrelid = c.oid
INNER JOIN pg_catalog.pg_namespace n ON c.relnamespace = n.oid
WHERE n.nspname || '.' || c.relname = ANY($1)
ORDER BY 1, 2, 3`, []any{pq.Array(tables)}
}

func (d *PostgresDialect) NonDeferrableConstraintsQuery(tables []string) (string, []any) {
	return `SELECT
    table_schema AS schema,
    table_name AS table,
    constraint_name
FROM information_schema.table_constraints
WHERE constraint_type = 'FOREIGN KEY'
    AND is_deferrable = 'NO'
    AND table_schema || '.' || table_name = ANY($1)
ORDER BY 1, 2, 3`, []any{pq.Array(tables)}
}

// NonDeferrableReferencesQuery finds foreign keys on tables outside the set
// that point into it. They block deletes on the set as much as its own.
func (d *PostgresDialect) NonDeferrableReferencesQuery(tables []string) (string, []any) {
	return `SELECT
    n.nspname AS schema,
    c.relname AS table,
    con.conname AS constraint_name
FROM pg_catalog.pg_constraint con
INNER JOIN pg_catalog.pg_class c ON con.conrelid = c.oid
INNER JOIN pg_catalog.pg_namespace n ON c.relnamespace = n.oid
INNER JOIN pg_catalog.pg_class rc ON con.confrelid = rc.oid
INNER JOIN pg_catalog.pg_namespace rn ON rc.relnamespace = rn.oid
WHERE con.contype = 'f'
    AND NOT con.condeferrable
    AND rn.nspname || '.' || rc.relname = ANY($1)
    AND NOT (n.nspname || '.' || c.relname = ANY($1))
ORDER BY 1, 2, 3`, []any{pq.Array(tables)}
}

func (d *PostgresDialect) ForeignKeysQuery(tables []string) (string, []any) {
	return `SELECT
    n.nspname AS schema,
    c.relname AS table,
    rn.nspname AS referenced_schema,
    rc.relname AS referenced_table
FROM pg_catalog.pg_constraint con
INNER JOIN pg_catalog.pg_class c ON con.conrelid = c.oid
INNER JOIN pg_catalog.pg_namespace n ON c.relnamespace = n.oid
INNER JOIN pg_catalog.pg_class rc ON con.confrelid = rc.oid
INNER JOIN pg_catalog.pg_namespace rn ON rc.relnamespace = rn.oid
WHERE con.contype = 'f'
    AND n.nspname || '.' || c.relname = ANY($1)
ORDER BY 1, 2, 3, 4`, []any{pq.Array(tables)}
}

// ManagedPlatformQuery probes the Amazon RDS settings namespace.
func (d *PostgresDialect) ManagedPlatformQuery() string {
	return `SELECT name, setting FROM pg_settings WHERE name LIKE 'rds.%'`
}

// SessionReplicaStatement suppresses triggers (including FK triggers) until
// the transaction ends. Requires superuser, or rds_superuser on RDS.
func (d *PostgresDialect) SessionReplicaStatement() (string, error) {
	return "SET LOCAL session_replication_role = replica", nil
}

func (d *PostgresDialect) DisableTriggerStatement(schema, table, trigger string) (string, error) {
	return fmt.Sprintf("ALTER TABLE %s DISABLE TRIGGER %s", d.QualifiedTable(schema, table), d.QuoteIdent(trigger)), nil
}

func (d *PostgresDialect) EnableTriggerStatement(schema, table, trigger string) (string, error) {
	return fmt.Sprintf("ALTER TABLE %s ENABLE TRIGGER %s", d.QualifiedTable(schema, table), d.QuoteIdent(trigger)), nil
}

// SupportsIntegrityTriggers is true: foreign keys are enforced by internal
// RI_ConstraintTrigger triggers.
func (d *PostgresDialect) SupportsIntegrityTriggers() bool { return true }

func (d *PostgresDialect) DisableIntegrityStatement(schema, table, trigger string) (string, error) {
	return d.DisableTriggerStatement(schema, table, trigger)
}

func (d *PostgresDialect) EnableIntegrityStatement(schema, table, trigger string) (string, error) {
	return d.EnableTriggerStatement(schema, table, trigger)
}

func (d *PostgresDialect) DeferConstraintsStatement() (string, error) {
	return "SET CONSTRAINTS ALL DEFERRED", nil
}

func (d *PostgresDialect) ImmediateConstraintsStatement() (string, error) {
	return "SET CONSTRAINTS ALL IMMEDIATE", nil
}

func (d *PostgresDialect) AlterConstraintStatement(schema, table, constraint string, deferrable bool) (string, error) {
	clause := "NOT DEFERRABLE"
	if deferrable {
		clause = "DEFERRABLE"
	}
	return fmt.Sprintf("ALTER TABLE %s ALTER CONSTRAINT %s %s", d.QualifiedTable(schema, table), d.QuoteIdent(constraint), clause), nil
}

func (d *PostgresDialect) QuoteIdent(name string) string {
	return pq.QuoteIdentifier(name)
}

func (d *PostgresDialect) QualifiedTable(schema, table string) string {
	if schema == "" {
		schema = d.DefaultSchema()
	}
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(table)
}

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index+1)
}

func (d *PostgresDialect) InsertQuery(table string, cols []string) string {
	return insertQuery(d, table, cols)
}

func (d *PostgresDialect) LimitQuery(query string, limit int) string {
	return fmt.Sprintf("%s LIMIT %d", query, limit)
}

func (d *PostgresDialect) ReadTxOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
}
