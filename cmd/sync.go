package cmd

import (
	"os"
	"time"

	"db-sync/internal/engine"
	"db-sync/internal/metrics"
	"db-sync/internal/schema"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	tables []string
	where  string
)

var syncCmd = &cobra.Command{
	Use:   "sync [tables...]",
	Short: "Sync tables from source to destination",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		src, dst, err := openDataSources(ctx)
		if err != nil {
			return err
		}
		defer src.Close()
		defer dst.Close()

		resolver := schema.NewCatalogResolver(
			src, schema.NewProbe(src.Dialect()),
			dst, schema.NewProbe(dst.Dialect()),
		)

		// Table selection strategy:
		// 1. Check CLI args / --tables
		// 2. If empty, check config tables
		// 3. If both empty, sync every source table.
		wheres := make(map[string]string)
		names := append(append([]string{}, args...), tables...)
		for _, n := range names {
			wheres[n] = where
		}
		if len(names) == 0 {
			configTables, err := GetTableConfigs()
			if err != nil {
				return err
			}
			for _, t := range configTables {
				names = append(names, t.Name)
				wheres[t.Name] = t.Where
			}
		}

		refs, err := resolver.Resolve(ctx, names)
		if err != nil {
			return err
		}

		copier := &engine.TableCopier{
			Source:      src.Dialect(),
			Destination: dst.Dialect(),
			Logger:      Logger,
		}
		defaults := engine.TaskOptions{
			BatchSize: viper.GetInt("settings.batch_size"),
			BatchKey:  viper.GetString("settings.batch_key"),
			Sleep:     viper.GetDuration("settings.sleep"),
		}
		tasks := make([]*engine.SyncTask, len(refs))
		for i, ref := range refs {
			opts := defaults
			opts.Where = lookupWhere(wheres, ref, src.Dialect().DefaultSchema())
			tasks[i] = engine.NewSyncTask(ref, opts, copier)
		}

		opts := engine.RunOptions{
			Jobs:                viper.GetInt("settings.jobs"),
			FailFast:            viper.GetBool("settings.fail_fast"),
			InBatches:           viper.GetBool("settings.in_batches"),
			Debug:               debug,
			DisableUserTriggers: viper.GetBool("settings.disable_user_triggers"),
			DisableIntegrity:    viper.GetBool("settings.disable_integrity"),
			DisableIntegrityV2:  viper.GetBool("settings.disable_integrity_v2"),
			DeferConstraints:    viper.GetBool("settings.defer_constraints"),
			DeferConstraintsV2:  viper.GetBool("settings.defer_constraints_v2"),
			DependencyOrder:     viper.GetBool("settings.dependency_order"),
		}

		reporter := engine.LogReporter{Logger: Logger}
		recorder := metrics.NewRecorder()
		listeners := engine.MultiListener{recorder}

		interactive := !debug && isatty.IsTerminal(os.Stderr.Fd())
		if interactive {
			bars := engine.NewBarListener(os.Stderr)
			bars.Start()
			defer bars.Stop()
			listeners = append(listeners, bars)
		} else {
			listeners = append(listeners, engine.LineListener{Reporter: reporter})
		}

		syncer := &engine.Syncer{
			Source:      src,
			Destination: dst,
			Resolver:    resolver,
			Reporter:    reporter,
			Listener:    listeners,
			Platform:    engine.CurrentPlatform(),
			Logger:      Logger,
		}

		start := time.Now()
		err = syncer.Run(ctx, tasks, opts)
		recorder.RunFinished(err)

		if path := viper.GetString("metrics.textfile"); path != "" {
			if werr := recorder.WriteTextfile(path); werr != nil {
				Logger.Warn().Err(werr).Str("path", path).Msg("failed to write metrics")
			}
		}
		if err != nil {
			return err
		}
		Logger.Info().Dur("elapsed", time.Since(start)).Msg("sync done")
		return nil
	},
}

func lookupWhere(wheres map[string]string, ref schema.TableRef, defaultSchema string) string {
	if w, ok := wheres[ref.String()]; ok {
		return w
	}
	if ref.Schema == defaultSchema {
		return wheres[ref.Name]
	}
	return ""
}

func init() {
	RootCmd.AddCommand(syncCmd)

	f := syncCmd.Flags()
	f.StringSliceVarP(&tables, "tables", "t", []string{}, "Specific tables to sync (comma-separated)")
	f.StringVar(&where, "where", "", "SQL predicate limiting the rows synced for the given tables")
	f.IntP("jobs", "j", 0, "Number of tables to sync in parallel")
	f.Bool("fail-fast", false, "Stop dispatching tables after the first failure")
	f.Bool("in-batches", false, "Append new rows in batches ordered by --batch-key")
	f.Int("batch-size", engine.DefaultBatchSize, "Rows per batch")
	f.String("batch-key", engine.DefaultBatchKey, "Column used to order and resume batches")
	f.Duration("sleep", 0, "Pause between batches")
	f.Bool("disable-user-triggers", false, "Disable non-system triggers while copying")
	f.Bool("disable-integrity", false, "Disable foreign key triggers for the run")
	f.Bool("disable-integrity-v2", false, "Disable foreign key triggers with session_replication_role")
	f.Bool("defer-constraints", false, "Defer deferrable constraints until commit")
	f.Bool("defer-constraints-v2", false, "Make foreign keys deferrable for the run and defer them")
	f.Bool("dependency-order", false, "Sync referenced tables before referencing ones")
	f.String("metrics-textfile", "", "Write Prometheus metrics to this file after the run")

	for key, flag := range map[string]string{
		"settings.jobs":                  "jobs",
		"settings.fail_fast":             "fail-fast",
		"settings.in_batches":            "in-batches",
		"settings.batch_size":            "batch-size",
		"settings.batch_key":             "batch-key",
		"settings.sleep":                 "sleep",
		"settings.disable_user_triggers": "disable-user-triggers",
		"settings.disable_integrity":     "disable-integrity",
		"settings.disable_integrity_v2":  "disable-integrity-v2",
		"settings.defer_constraints":     "defer-constraints",
		"settings.defer_constraints_v2":  "defer-constraints-v2",
		"settings.dependency_order":      "dependency-order",
		"metrics.textfile":               "metrics-textfile",
	} {
		viper.BindPFlag(key, f.Lookup(flag))
	}
}
