package dialect

import (
	"database/sql"
	"fmt"
)

// SQLiteDialect treats every database as the single schema "main".
// Foreign key deferral is the only relaxation SQLite can express.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string { return "sqlite3" }

func (d *SQLiteDialect) DefaultSchema() string { return "main" }

func (d *SQLiteDialect) TablesQuery() string {
	return `SELECT 'main', name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY 1, 2`
}

func (d *SQLiteDialect) ColumnsQuery(tables []string) (string, []any) {
	return `SELECT
    'main' AS schema,
    m.name AS "table",
    p.name AS "column",
    lower(p.type) AS type
FROM sqlite_master m
JOIN pragma_table_info(m.name) p
WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
ORDER BY 1, 2, 3`, nil
}

func (d *SQLiteDialect) TriggersQuery(tables []string) (string, []any) {
	return `SELECT
    'main' AS schema,
    tbl_name AS "table",
    name,
    0 AS internal,
    1 AS enabled,
    0 AS integrity
FROM sqlite_master
WHERE type = 'trigger'
ORDER BY 1, 2, 3`, nil
}

// NonDeferrableConstraintsQuery returns no rows: SQLite does not expose
// deferrability in its catalog and cannot alter it.
func (d *SQLiteDialect) NonDeferrableConstraintsQuery(tables []string) (string, []any) {
	return `SELECT '' AS schema, '' AS "table", '' AS constraint_name WHERE 0`, nil
}

func (d *SQLiteDialect) NonDeferrableReferencesQuery(tables []string) (string, []any) {
	return "", nil
}

func (d *SQLiteDialect) ForeignKeysQuery(tables []string) (string, []any) {
	return `SELECT
    'main' AS schema,
    m.name AS "table",
    'main' AS referenced_schema,
    f."table" AS referenced_table
FROM sqlite_master m
JOIN pragma_foreign_key_list(m.name) f
WHERE m.type = 'table'
ORDER BY 1, 2, 3, 4`, nil
}

func (d *SQLiteDialect) ManagedPlatformQuery() string { return "" }

func (d *SQLiteDialect) SessionReplicaStatement() (string, error) {
	return "", unsupported(d, "session replication role")
}

func (d *SQLiteDialect) DisableTriggerStatement(schema, table, trigger string) (string, error) {
	return "", unsupported(d, "disabling triggers")
}

func (d *SQLiteDialect) EnableTriggerStatement(schema, table, trigger string) (string, error) {
	return "", unsupported(d, "enabling triggers")
}

func (d *SQLiteDialect) SupportsIntegrityTriggers() bool { return false }

func (d *SQLiteDialect) DisableIntegrityStatement(schema, table, trigger string) (string, error) {
	return "", unsupported(d, "disabling foreign keys")
}

func (d *SQLiteDialect) EnableIntegrityStatement(schema, table, trigger string) (string, error) {
	return "", unsupported(d, "enabling foreign keys")
}

// DeferConstraintsStatement defers every foreign key until the outermost
// transaction commits. The pragma resets itself at commit or rollback.
func (d *SQLiteDialect) DeferConstraintsStatement() (string, error) {
	return "PRAGMA defer_foreign_keys = ON", nil
}

func (d *SQLiteDialect) ImmediateConstraintsStatement() (string, error) {
	return "PRAGMA defer_foreign_keys = OFF", nil
}

func (d *SQLiteDialect) AlterConstraintStatement(schema, table, constraint string, deferrable bool) (string, error) {
	return "", unsupported(d, "altering constraints")
}

func (d *SQLiteDialect) QuoteIdent(name string) string {
	return quoteWith(name, `"`, `"`)
}

func (d *SQLiteDialect) QualifiedTable(schema, table string) string {
	if schema == "" {
		schema = d.DefaultSchema()
	}
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(table)
}

func (d *SQLiteDialect) Placeholder(index int) string { return "?" }

func (d *SQLiteDialect) InsertQuery(table string, cols []string) string {
	return insertQuery(d, table, cols)
}

func (d *SQLiteDialect) LimitQuery(query string, limit int) string {
	return fmt.Sprintf("%s LIMIT %d", query, limit)
}

func (d *SQLiteDialect) ReadTxOptions() *sql.TxOptions {
	return nil
}
