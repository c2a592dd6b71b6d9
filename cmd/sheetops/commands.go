package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"sheetops/internal/config"
	"sheetops/internal/kvstore"
	"sheetops/internal/logging"
	"sheetops/internal/notify"
	"sheetops/internal/ops"
	"sheetops/internal/storage"

	// register every backend; config picks the kind.
	_ "sheetops/internal/kvstore/all"
	_ "sheetops/internal/storage/all"
)

// app holds state shared by the subcommands of one invocation.
type app struct {
	stdout, stderr io.Writer

	cfgPath        string
	metricsBackend string
	verbose        bool

	cfg *config.Config
	log *slog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "sheetops",
		Short:         "Spreadsheet cleanup operations over CSV directories and SQL stores",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	f := root.PersistentFlags()
	f.StringVar(&a.cfgPath, "config", "", "config JSON path (default $"+config.EnvPath+")")
	f.StringVar(&a.metricsBackend, "metrics-backend", "", "override metrics.backend (none, prompush, datadog)")
	f.BoolVarP(&a.verbose, "verbose", "v", false, "print progress toasts")

	root.AddCommand(
		a.opCmd(ops.OpUnion, "Combine all eligible tables into one in a single pass", false,
			func(ctx context.Context, r *ops.Runner) error { _, err := r.Union(ctx); return err }),
		a.opCmd(ops.OpBatch, "Combine the next batch of tables, resuming from the checkpoint", true,
			func(ctx context.Context, r *ops.Runner) error { _, err := r.Batch(ctx); return err }),
		a.opCmd(ops.OpMerge, "Merge listed source tables into one deduplicated table", false,
			func(ctx context.Context, r *ops.Runner) error { _, err := r.Merge(ctx); return err }),
		a.opCmd(ops.OpClean, "Project leads onto the configured columns and drop duplicates", false,
			func(ctx context.Context, r *ops.Runner) error { _, err := r.Clean(ctx); return err }),
		a.opCmd(ops.OpDedup, "Deduplicate one table in place by a key column", false,
			func(ctx context.Context, r *ops.Runner) error { _, err := r.Dedup(ctx); return err }),
		a.opCmd(ops.OpGeo, "Repair and complete city, state, country and region", false,
			func(ctx context.Context, r *ops.Runner) error { _, err := r.GeoFix(ctx); return err }),
		a.opCmd(ops.OpRegions, "Normalize region labels", false,
			func(ctx context.Context, r *ops.Runner) error { _, err := r.NormalizeRegions(ctx); return err }),
		a.opCmd(ops.OpTitles, "Categorize job titles into designations", false,
			func(ctx context.Context, r *ops.Runner) error { _, err := r.Categorize(ctx); return err }),
		a.opCmd(ops.OpSize, "Label company sizes with head-count intervals", false,
			func(ctx context.Context, r *ops.Runner) error { _, err := r.SizeBands(ctx); return err }),
		a.opCmd(ops.OpMaster, "Build a master geo mapping from the mapping and audit tables", false,
			func(ctx context.Context, r *ops.Runner) error { _, err := r.MasterMapping(ctx); return err }),
		a.opCmd(ops.OpColumns, "Write the header matrix of all eligible tables", false,
			func(ctx context.Context, r *ops.Runner) error { _, err := r.ColumnMatrix(ctx); return err }),
		a.validateCmd(),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.metricsBackend != "" {
		cfg.Metrics.Backend = a.metricsBackend
	}
	a.cfg = cfg
	a.log = logging.NewWriter(a.stderr, cfg.Log)
	slog.SetDefault(a.log)
	return nil
}

// check prints every validation issue and fails on errors.
func (a *app) check() error {
	issues := config.Validate(a.cfg)
	for _, iss := range issues {
		fmt.Fprintf(a.stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return errInvalidConfig
	}
	return nil
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.check(); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "configuration is valid")
			return nil
		},
	}
}

func (a *app) opCmd(name, short string, needKV bool, fn func(context.Context, *ops.Runner) error) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.check(); err != nil {
				return err
			}
			ctx := cmd.Context()
			r, closeFn, err := a.runner(ctx, needKV)
			if err != nil {
				return err
			}
			defer closeFn()

			flush := a.setupMetrics()
			defer flush()
			return fn(ctx, r)
		},
	}
}

// runner opens the store, and the checkpoint store when needKV is set.
func (a *app) runner(ctx context.Context, needKV bool) (*ops.Runner, func(), error) {
	cfg := a.cfg
	store, err := storage.New(ctx, storage.Config{Kind: cfg.Store.Kind, DSN: cfg.Store.DSN, Options: cfg.Store.Options})
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	r := &ops.Runner{
		Cfg:   cfg,
		Store: store,
		Sink:  notify.Multi{&notify.Writer{W: a.stdout, Verbose: a.verbose}, notify.Log{Logger: a.log}},
		Log:   a.log,
	}
	if needKV {
		kv, err := kvstore.New(ctx, kvstore.Config{Kind: cfg.Checkpoint.Kind, DSN: cfg.Checkpoint.DSN, Prefix: cfg.Checkpoint.Prefix})
		if err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("open checkpoint store: %w", err)
		}
		r.KV = kv
	}
	closeFn := func() {
		if r.KV != nil {
			if err := r.KV.Close(); err != nil {
				a.log.Warn("close checkpoint store", "err", err)
			}
		}
		if err := store.Close(); err != nil {
			a.log.Warn("close store", "err", err)
		}
	}
	return r, closeFn, nil
}
