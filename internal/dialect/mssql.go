package dialect

import (
	"database/sql"
	"fmt"
)

// MSSQLDialect supports per-trigger disabling. SQL Server enforces foreign
// keys without triggers, so TriggersQuery lists each foreign key as an
// internal integrity trigger and the integrity statements switch its check
// off and on. There are no deferred constraints and no session replication
// role.
type MSSQLDialect struct{}

func (d *MSSQLDialect) Name() string { return "sqlserver" }

func (d *MSSQLDialect) DefaultSchema() string { return "dbo" }

func (d *MSSQLDialect) TablesQuery() string {
	return `SELECT TABLE_SCHEMA, TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE = 'BASE TABLE' ORDER BY 1, 2`
}

func (d *MSSQLDialect) ColumnsQuery(tables []string) (string, []any) {
	return `SELECT TABLE_SCHEMA, TABLE_NAME, COLUMN_NAME, DATA_TYPE FROM INFORMATION_SCHEMA.COLUMNS ORDER BY 1, 2, 3`, nil
}

func (d *MSSQLDialect) TriggersQuery(tables []string) (string, []any) {
	return `SELECT
    s.name AS [schema],
    o.name AS [table],
    t.name AS name,
    CAST(0 AS bit) AS internal,
    CAST(CASE WHEN t.is_disabled = 1 THEN 0 ELSE 1 END AS bit) AS enabled,
    CAST(0 AS bit) AS integrity
FROM sys.triggers t
INNER JOIN sys.objects o ON t.parent_id = o.object_id
INNER JOIN sys.schemas s ON o.schema_id = s.schema_id
UNION ALL
SELECT
    OBJECT_SCHEMA_NAME(fk.parent_object_id),
    OBJECT_NAME(fk.parent_object_id),
    fk.name,
    CAST(1 AS bit),
    CAST(CASE WHEN fk.is_disabled = 1 THEN 0 ELSE 1 END AS bit),
    CAST(1 AS bit)
FROM sys.foreign_keys fk
ORDER BY 1, 2, 3`, nil
}

// NonDeferrableConstraintsQuery lists every foreign key; none are deferrable.
func (d *MSSQLDialect) NonDeferrableConstraintsQuery(tables []string) (string, []any) {
	return `SELECT TABLE_SCHEMA, TABLE_NAME, CONSTRAINT_NAME FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS WHERE CONSTRAINT_TYPE = 'FOREIGN KEY' ORDER BY 1, 2, 3`, nil
}

func (d *MSSQLDialect) NonDeferrableReferencesQuery(tables []string) (string, []any) {
	return "", nil
}

func (d *MSSQLDialect) ForeignKeysQuery(tables []string) (string, []any) {
	return `SELECT DISTINCT
    OBJECT_SCHEMA_NAME(fk.parent_object_id),
    OBJECT_NAME(fk.parent_object_id),
    OBJECT_SCHEMA_NAME(fk.referenced_object_id),
    OBJECT_NAME(fk.referenced_object_id)
FROM sys.foreign_keys fk
ORDER BY 1, 2, 3, 4`, nil
}

func (d *MSSQLDialect) ManagedPlatformQuery() string { return "" }

func (d *MSSQLDialect) SessionReplicaStatement() (string, error) {
	return "", unsupported(d, "session replication role")
}

func (d *MSSQLDialect) DisableTriggerStatement(schema, table, trigger string) (string, error) {
	return fmt.Sprintf("DISABLE TRIGGER %s.%s ON %s", d.QuoteIdent(schema), d.QuoteIdent(trigger), d.QualifiedTable(schema, table)), nil
}

func (d *MSSQLDialect) EnableTriggerStatement(schema, table, trigger string) (string, error) {
	return fmt.Sprintf("ENABLE TRIGGER %s.%s ON %s", d.QuoteIdent(schema), d.QuoteIdent(trigger), d.QualifiedTable(schema, table)), nil
}

func (d *MSSQLDialect) SupportsIntegrityTriggers() bool { return true }

func (d *MSSQLDialect) DisableIntegrityStatement(schema, table, constraint string) (string, error) {
	return fmt.Sprintf("ALTER TABLE %s NOCHECK CONSTRAINT %s", d.QualifiedTable(schema, table), d.QuoteIdent(constraint)), nil
}

func (d *MSSQLDialect) EnableIntegrityStatement(schema, table, constraint string) (string, error) {
	return fmt.Sprintf("ALTER TABLE %s CHECK CONSTRAINT %s", d.QualifiedTable(schema, table), d.QuoteIdent(constraint)), nil
}

func (d *MSSQLDialect) DeferConstraintsStatement() (string, error) {
	return "", unsupported(d, "deferred constraints")
}

func (d *MSSQLDialect) ImmediateConstraintsStatement() (string, error) {
	return "", unsupported(d, "deferred constraints")
}

func (d *MSSQLDialect) AlterConstraintStatement(schema, table, constraint string, deferrable bool) (string, error) {
	return "", unsupported(d, "altering constraints")
}

func (d *MSSQLDialect) QuoteIdent(name string) string {
	return quoteWith(name, "[", "]")
}

func (d *MSSQLDialect) QualifiedTable(schema, table string) string {
	if schema == "" {
		schema = d.DefaultSchema()
	}
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(table)
}

func (d *MSSQLDialect) Placeholder(index int) string {
	return fmt.Sprintf("@p%d", index+1)
}

func (d *MSSQLDialect) InsertQuery(table string, cols []string) string {
	return insertQuery(d, table, cols)
}

func (d *MSSQLDialect) LimitQuery(query string, limit int) string {
	return fmt.Sprintf("%s OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", query, limit)
}

func (d *MSSQLDialect) ReadTxOptions() *sql.TxOptions {
	return nil
}
