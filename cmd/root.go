package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"db-sync/internal/logging"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	debug     bool
	Logger    zerolog.Logger
	logCloser io.Closer
)

var RootCmd = &cobra.Command{
	Use:   "db-sync",
	Short: "Sync table data from one database to another",
	Long: `
  ____  ____    ______   ___   _  ____ 
 |  _ \| __ )  / ___\ \ / / \ | |/ ___|
 | | | |  _ \  \___ \\ V /|  \| | |    
 | |_| | |_) |  ___) || | | |\  | |___ 
 |____/|____/  |____/ |_| |_| \_|\____|

DB SYNC - copy tables between databases
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var cfg logging.Config
		if err := viper.UnmarshalKey("logging", &cfg); err != nil {
			return fmt.Errorf("failed to parse logging config: %w", err)
		}
		if debug {
			cfg.Level = "debug"
		}

		logger, closer, err := logging.New(cfg)
		if err != nil {
			return err
		}
		Logger = logger.With().Str("run", uuid.NewString()).Logger()
		logCloser = closer
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := RootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./db-sync.yaml)")
	RootCmd.PersistentFlags().String("source-dsn", "", "Source Data Source Name (DSN)")
	RootCmd.PersistentFlags().String("source-driver", "", "Source driver (detected from DSN when empty)")
	RootCmd.PersistentFlags().String("destination-dsn", "", "Destination Data Source Name (DSN)")
	RootCmd.PersistentFlags().String("destination-driver", "", "Destination driver (detected from DSN when empty)")
	RootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log every statement; forces sequential execution")

	viper.BindPFlag("source.dsn", RootCmd.PersistentFlags().Lookup("source-dsn"))
	viper.BindPFlag("source.driver", RootCmd.PersistentFlags().Lookup("source-driver"))
	viper.BindPFlag("destination.dsn", RootCmd.PersistentFlags().Lookup("destination-dsn"))
	viper.BindPFlag("destination.driver", RootCmd.PersistentFlags().Lookup("destination-driver"))
}

// initConfig reads in .env, the config file and ENV variables if set.
func initConfig() {
	// .env is optional
	_ = godotenv.Load(".env")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// 1. Executable Directory (Priority 1)
		if ex, err := os.Executable(); err == nil {
			viper.AddConfigPath(filepath.Dir(ex))
		}
		// 2. Current Directory (Priority 2)
		viper.AddConfigPath(".")

		viper.SetConfigName("db-sync")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("DB_SYNC")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
