package dialect

import (
	"database/sql"
	"fmt"
)

// MysqlDialect maps MySQL databases to schemas. Catalog queries only cover
// the connection's current database and report it as the empty schema, so
// bare table names match whatever database each side is connected to.
// MySQL foreign keys are never deferrable and have no catalog triggers, so
// only metadata and copy statements are supported.
type MysqlDialect struct{}

func (d *MysqlDialect) Name() string { return "mysql" }

func (d *MysqlDialect) DefaultSchema() string { return "" }

func (d *MysqlDialect) TablesQuery() string {
	return `SELECT '' AS TABLE_SCHEMA, TABLE_NAME FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE' ORDER BY 1, 2`
}

func (d *MysqlDialect) ColumnsQuery(tables []string) (string, []any) {
	return `SELECT '' AS TABLE_SCHEMA, TABLE_NAME, COLUMN_NAME, DATA_TYPE FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = DATABASE() ORDER BY 1, 2, 3`, nil
}

func (d *MysqlDialect) TriggersQuery(tables []string) (string, []any) {
	return `SELECT '' AS EVENT_OBJECT_SCHEMA, EVENT_OBJECT_TABLE, TRIGGER_NAME, 0, 1, 0 FROM information_schema.TRIGGERS WHERE EVENT_OBJECT_SCHEMA = DATABASE() ORDER BY 1, 2, 3`, nil
}

func (d *MysqlDialect) NonDeferrableConstraintsQuery(tables []string) (string, []any) {
	return `SELECT '' AS TABLE_SCHEMA, TABLE_NAME, CONSTRAINT_NAME FROM information_schema.TABLE_CONSTRAINTS WHERE CONSTRAINT_TYPE = 'FOREIGN KEY' AND TABLE_SCHEMA = DATABASE() ORDER BY 1, 2, 3`, nil
}

func (d *MysqlDialect) NonDeferrableReferencesQuery(tables []string) (string, []any) {
	return "", nil
}

func (d *MysqlDialect) ForeignKeysQuery(tables []string) (string, []any) {
	return `SELECT DISTINCT '' AS TABLE_SCHEMA, TABLE_NAME, CASE WHEN REFERENCED_TABLE_SCHEMA = DATABASE() THEN '' ELSE REFERENCED_TABLE_SCHEMA END, REFERENCED_TABLE_NAME FROM information_schema.KEY_COLUMN_USAGE WHERE REFERENCED_TABLE_NAME IS NOT NULL AND TABLE_SCHEMA = DATABASE() ORDER BY 1, 2, 3, 4`, nil
}

func (d *MysqlDialect) ManagedPlatformQuery() string { return "" }

func (d *MysqlDialect) SessionReplicaStatement() (string, error) {
	return "", unsupported(d, "session replication role")
}

func (d *MysqlDialect) DisableTriggerStatement(schema, table, trigger string) (string, error) {
	return "", unsupported(d, "disabling triggers")
}

func (d *MysqlDialect) EnableTriggerStatement(schema, table, trigger string) (string, error) {
	return "", unsupported(d, "enabling triggers")
}

func (d *MysqlDialect) SupportsIntegrityTriggers() bool { return false }

func (d *MysqlDialect) DisableIntegrityStatement(schema, table, trigger string) (string, error) {
	return "", unsupported(d, "disabling foreign keys")
}

func (d *MysqlDialect) EnableIntegrityStatement(schema, table, trigger string) (string, error) {
	return "", unsupported(d, "enabling foreign keys")
}

func (d *MysqlDialect) DeferConstraintsStatement() (string, error) {
	return "", unsupported(d, "deferred constraints")
}

func (d *MysqlDialect) ImmediateConstraintsStatement() (string, error) {
	return "", unsupported(d, "deferred constraints")
}

func (d *MysqlDialect) AlterConstraintStatement(schema, table, constraint string, deferrable bool) (string, error) {
	return "", unsupported(d, "altering constraints")
}

func (d *MysqlDialect) QuoteIdent(name string) string {
	return quoteWith(name, "`", "`")
}

func (d *MysqlDialect) QualifiedTable(schema, table string) string {
	if schema == "" {
		return d.QuoteIdent(table)
	}
	return fmt.Sprintf("%s.%s", d.QuoteIdent(schema), d.QuoteIdent(table))
}

func (d *MysqlDialect) Placeholder(index int) string { return "?" }

func (d *MysqlDialect) InsertQuery(table string, cols []string) string {
	return insertQuery(d, table, cols)
}

func (d *MysqlDialect) LimitQuery(query string, limit int) string {
	return fmt.Sprintf("%s LIMIT %d", query, limit)
}

func (d *MysqlDialect) ReadTxOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
}
