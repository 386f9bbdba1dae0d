// Command grs-index loads a grs.csv.gz growth-rate export, reshapes it into
// per-(location, lineage) records and writes them to a document index.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"growthindex/internal/blob"
	"growthindex/internal/config"
	"growthindex/internal/docstore"
	"growthindex/internal/grs"
	"growthindex/internal/ingest"
	"growthindex/internal/mapping"
	"growthindex/internal/observability"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

// cli runs the command tree and returns the process exit code.
func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "grs-index: %v\n", err)
		return 1
	}
	return 0
}

type app struct {
	configPath string
	verbose    bool
	asOf       string

	cfg    config.Config
	zap    *zap.Logger
	logger observability.Logger
	stdout io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, logger: observability.NopLogger()}
	root := &cobra.Command{
		Use:           "grs-index",
		Short:         "Index lineage growth-rate statistics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.zap != nil {
				_ = a.zap.Sync()
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", config.DefaultPath, "path to the YAML config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	runCmd := &cobra.Command{
		Use:   "run [folder]",
		Short: "Load folder/grs.csv.gz and index its records",
		Args:  cobra.MaximumNArgs(1),
		RunE:  a.run,
	}
	runCmd.Flags().StringVar(&a.asOf, "as-of", "", "evaluate the trailing window as of this date (YYYY-MM-DD)")

	mappingCmd := &cobra.Command{
		Use:   "mapping",
		Short: "Print the index field mapping as JSON",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			data, err := mapping.CustomDataMapping(nil).JSON()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.stdout, string(data))
			return err
		},
	}

	var out string
	var archive bool
	exportCmd := &cobra.Command{
		Use:   "export [folder]",
		Short: "Write the records of folder/grs.csv.gz as gzip NDJSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.export(cmd, args, out, archive)
		},
	}
	exportCmd.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	exportCmd.Flags().BoolVar(&archive, "archive", false, "store the export in the source blob store instead of --out")
	exportCmd.Flags().StringVar(&a.asOf, "as-of", "", "evaluate the trailing window as of this date (YYYY-MM-DD)")

	root.AddCommand(runCmd, mappingCmd, exportCmd)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	level := cfg.Log.Level
	if a.verbose {
		level = "debug"
	}
	logger, err := observability.NewZap(level)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.zap = logger
	a.logger = observability.NewZapLogger(logger)
	return nil
}

func (a *app) clock() (grs.Clock, error) {
	if a.asOf == "" {
		return grs.SystemClock(), nil
	}
	day, err := time.Parse(grs.DateLayout, a.asOf)
	if err != nil {
		return nil, fmt.Errorf("invalid --as-of %q: %w", a.asOf, err)
	}
	return grs.ClockFunc(func() time.Time { return day }), nil
}

func (a *app) folder(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return a.cfg.DataFolder
}

func (a *app) runner(ctx context.Context, withIndex bool, metrics observability.MetricsRecorder) (*ingest.Runner, func(), error) {
	clock, err := a.clock()
	if err != nil {
		return nil, nil, err
	}
	source, err := blob.Open(ctx, a.cfg.Source)
	if err != nil {
		return nil, nil, fmt.Errorf("open source: %w", err)
	}
	var index docstore.Index
	closeFn := func() {}
	if withIndex {
		index, err = docstore.Open(ctx, a.cfg.Index)
		if err != nil {
			return nil, nil, fmt.Errorf("open index: %w", err)
		}
		closeFn = func() {
			if err := index.Close(); err != nil {
				a.logger.Warn("close index", "error", err)
			}
		}
	}
	r := ingest.NewRunner(source, index,
		ingest.WithClock(clock),
		ingest.WithLogger(a.logger),
		ingest.WithMetrics(metrics),
		ingest.WithBatchSize(a.cfg.BatchSize),
		ingest.WithWindow(a.cfg.Window()),
	)
	return r, closeFn, nil
}

func (a *app) metrics() (*observability.PrometheusRecorder, observability.MetricsRecorder) {
	prom := observability.NewPrometheusRecorder()
	if !a.cfg.Metrics.Expvar {
		return prom, prom
	}
	return prom, observability.Multi(prom, observability.NewExpvarRecorder(""))
}

func (a *app) run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	prom, metrics := a.metrics()
	r, closeFn, err := a.runner(ctx, true, metrics)
	if err != nil {
		return err
	}
	defer closeFn()

	report, err := r.Run(ctx, a.folder(args))
	if path := a.cfg.Metrics.Textfile; path != "" {
		if werr := prom.WriteTextfile(path); werr != nil {
			a.logger.Warn("metrics textfile not written", "path", path, "error", werr)
		}
	}
	if err != nil {
		return err
	}
	return writeJSON(a.stdout, report)
}

func (a *app) export(cmd *cobra.Command, args []string, out string, archive bool) error {
	ctx := cmd.Context()
	_, metrics := a.metrics()
	r, closeFn, err := a.runner(ctx, false, metrics)
	if err != nil {
		return err
	}
	defer closeFn()
	folder := a.folder(args)

	if archive {
		res, err := r.Archive(ctx, folder, ingest.NewRunID())
		if err != nil {
			return err
		}
		return writeJSON(a.stdout, res)
	}

	if out == "-" {
		_, err := r.Export(ctx, folder, a.stdout)
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if _, err := r.Export(ctx, folder, f); err != nil {
		_ = f.Close()
		_ = os.Remove(out)
		return err
	}
	return f.Close()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
