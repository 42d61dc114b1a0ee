package dialect

import (
	"database/sql"
	"fmt"
)

// OracleDialect maps owners to schemas. Catalog queries cover the
// connected user's objects and report that owner as a NULL schema, which
// reads back as the empty schema. Oracle can defer constraints created
// DEFERRABLE but cannot change deferrability of an existing constraint, and
// disabling a constraint is DDL that commits the open transaction.
type OracleDialect struct{}

func (d *OracleDialect) Name() string { return "oracle" }

func (d *OracleDialect) DefaultSchema() string { return "" }

func (d *OracleDialect) TablesQuery() string {
	return `SELECT NULL, TABLE_NAME FROM USER_TABLES ORDER BY 1, 2`
}

func (d *OracleDialect) ColumnsQuery(tables []string) (string, []any) {
	return `SELECT NULL, TABLE_NAME, COLUMN_NAME, DATA_TYPE FROM USER_TAB_COLUMNS ORDER BY 1, 2, 3`, nil
}

func (d *OracleDialect) TriggersQuery(tables []string) (string, []any) {
	return `SELECT CASE WHEN TABLE_OWNER = USER THEN NULL ELSE TABLE_OWNER END, TABLE_NAME, TRIGGER_NAME, 0, CASE STATUS WHEN 'ENABLED' THEN 1 ELSE 0 END, 0 FROM USER_TRIGGERS WHERE BASE_OBJECT_TYPE = 'TABLE' ORDER BY 1, 2, 3`, nil
}

func (d *OracleDialect) NonDeferrableConstraintsQuery(tables []string) (string, []any) {
	return `SELECT NULL, TABLE_NAME, CONSTRAINT_NAME FROM USER_CONSTRAINTS WHERE CONSTRAINT_TYPE = 'R' AND DEFERRABLE = 'NOT DEFERRABLE' ORDER BY 1, 2, 3`, nil
}

func (d *OracleDialect) NonDeferrableReferencesQuery(tables []string) (string, []any) {
	return "", nil
}

func (d *OracleDialect) ForeignKeysQuery(tables []string) (string, []any) {
	return `SELECT DISTINCT NULL, c.TABLE_NAME, CASE WHEN r.OWNER = USER THEN NULL ELSE r.OWNER END, r.TABLE_NAME FROM USER_CONSTRAINTS c JOIN ALL_CONSTRAINTS r ON c.R_OWNER = r.OWNER AND c.R_CONSTRAINT_NAME = r.CONSTRAINT_NAME WHERE c.CONSTRAINT_TYPE = 'R' ORDER BY 1, 2, 3, 4`, nil
}

func (d *OracleDialect) ManagedPlatformQuery() string { return "" }

func (d *OracleDialect) SessionReplicaStatement() (string, error) {
	return "", unsupported(d, "session replication role")
}

func (d *OracleDialect) DisableTriggerStatement(schema, table, trigger string) (string, error) {
	return fmt.Sprintf("ALTER TRIGGER %s DISABLE", d.QualifiedTable(schema, trigger)), nil
}

func (d *OracleDialect) EnableTriggerStatement(schema, table, trigger string) (string, error) {
	return fmt.Sprintf("ALTER TRIGGER %s ENABLE", d.QualifiedTable(schema, trigger)), nil
}

func (d *OracleDialect) SupportsIntegrityTriggers() bool { return false }

func (d *OracleDialect) DisableIntegrityStatement(schema, table, trigger string) (string, error) {
	return "", unsupported(d, "disabling foreign keys inside a transaction")
}

func (d *OracleDialect) EnableIntegrityStatement(schema, table, trigger string) (string, error) {
	return "", unsupported(d, "enabling foreign keys inside a transaction")
}

func (d *OracleDialect) DeferConstraintsStatement() (string, error) {
	return "SET CONSTRAINTS ALL DEFERRED", nil
}

func (d *OracleDialect) ImmediateConstraintsStatement() (string, error) {
	return "SET CONSTRAINTS ALL IMMEDIATE", nil
}

func (d *OracleDialect) AlterConstraintStatement(schema, table, constraint string, deferrable bool) (string, error) {
	return "", unsupported(d, "altering constraint deferrability")
}

func (d *OracleDialect) QuoteIdent(name string) string {
	return quoteWith(name, `"`, `"`)
}

func (d *OracleDialect) QualifiedTable(schema, table string) string {
	if schema == "" {
		return d.QuoteIdent(table)
	}
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(table)
}

func (d *OracleDialect) Placeholder(index int) string {
	return fmt.Sprintf(":%d", index+1)
}

func (d *OracleDialect) InsertQuery(table string, cols []string) string {
	return insertQuery(d, table, cols)
}

func (d *OracleDialect) LimitQuery(query string, limit int) string {
	return fmt.Sprintf("%s FETCH FIRST %d ROWS ONLY", query, limit)
}

func (d *OracleDialect) ReadTxOptions() *sql.TxOptions {
	return nil
}
