package dialect

import "fmt"

// GetDialect returns the Dialect implementation for a driver name.
func GetDialect(driver string) (Dialect, error) {
	switch driver {
	case "postgres":
		return &PostgresDialect{}, nil
	case "sqlite3":
		return &SQLiteDialect{}, nil
	case "mysql":
		return &MysqlDialect{}, nil
	case "sqlserver", "mssql":
		return &MSSQLDialect{}, nil
	case "oracle":
		return &OracleDialect{}, nil
	default:
		return nil, fmt.Errorf("unknown driver %q", driver)
	}
}

// Ensure interface implementation
var _ Dialect = (*PostgresDialect)(nil)
var _ Dialect = (*SQLiteDialect)(nil)
var _ Dialect = (*MysqlDialect)(nil)
var _ Dialect = (*MSSQLDialect)(nil)
var _ Dialect = (*OracleDialect)(nil)
