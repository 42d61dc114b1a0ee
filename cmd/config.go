package cmd

import (
	"context"
	"fmt"
	"strings"

	"db-sync/internal/datasource"

	"github.com/spf13/viper"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// TableConfig is one entry of the tables list. Where is an optional SQL
// predicate applied to both sides.
type TableConfig struct {
	Name  string `mapstructure:"name"`
	Where string `mapstructure:"where"`
}

// GetDBConfig returns the connection settings for "source" or "destination".
func GetDBConfig(role string) (*DBConfig, error) {
	var cfg DBConfig
	if err := viper.UnmarshalKey(role, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s config: %w", role, err)
	}
	// UnmarshalKey skips env-only values
	if cfg.DSN == "" {
		cfg.DSN = viper.GetString(role + ".dsn")
	}
	if cfg.Driver == "" {
		cfg.Driver = viper.GetString(role + ".driver")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%s.dsn is required (via flag, env or config)", role)
	}
	if cfg.Driver == "" {
		cfg.Driver = DetectDriver(cfg.DSN)
	}
	return &cfg, nil
}

// GetTableConfigs returns the configured tables list.
func GetTableConfigs() ([]TableConfig, error) {
	var tables []TableConfig
	if err := viper.UnmarshalKey("tables", &tables); err != nil {
		return nil, fmt.Errorf("failed to parse tables config: %w", err)
	}
	return tables, nil
}

// DetectDriver guesses the driver name from a DSN.
func DetectDriver(dsn string) string {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"), strings.Contains(lower, "sslmode"):
		return "postgres"
	case strings.HasPrefix(lower, "sqlserver://"):
		return "sqlserver"
	case strings.HasPrefix(lower, "oracle://"):
		return "oracle"
	case strings.HasPrefix(lower, "file:"), strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return "sqlite3"
	default:
		return "mysql"
	}
}

func openDataSources(ctx context.Context) (*datasource.DataSource, *datasource.DataSource, error) {
	srcCfg, err := GetDBConfig("source")
	if err != nil {
		return nil, nil, err
	}
	dstCfg, err := GetDBConfig("destination")
	if err != nil {
		return nil, nil, err
	}

	src, err := datasource.Open(ctx, "source", srcCfg.Driver, srcCfg.DSN, Logger)
	if err != nil {
		return nil, nil, err
	}
	dst, err := datasource.Open(ctx, "destination", dstCfg.Driver, dstCfg.DSN, Logger)
	if err != nil {
		src.Close()
		return nil, nil, err
	}
	Logger.Info().Str("source", srcCfg.Driver).Str("destination", dstCfg.Driver).Msg("connected")
	return src, dst, nil
}
