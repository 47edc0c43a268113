package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/SorenAcevedo/uao-etl/internal/config"
	"github.com/SorenAcevedo/uao-etl/internal/dataprocessing"
	"github.com/SorenAcevedo/uao-etl/internal/datasets"
	"github.com/SorenAcevedo/uao-etl/internal/exporter"
	"github.com/SorenAcevedo/uao-etl/internal/history"
	"github.com/SorenAcevedo/uao-etl/internal/infrastructure"
	"github.com/SorenAcevedo/uao-etl/internal/operations"
)

const (
	exitOK       = 0
	exitFailed   = 1
	exitBadUsage = 2
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one ETL run and returns the process exit code. The summary is
// the only thing written to stdout.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(config.AppName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", "", "YAML config file (defaults to $ETL_CONFIG_FILE, ./etl.yaml or ./configs/etl.yaml)")
	only := fs.String("datasets", "", "comma separated subset of datasets to run (default: all)")
	historyOf := fs.String("history", "", "print the recorded runs of a dataset and exit")
	historyLimit := fs.Int("limit", 10, "number of runs printed by -history")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitBadUsage
	}

	cfg, err := config.LoadFrom(*configFile)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return exitFailed
	}

	paths, err := config.GetPaths(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "failed to resolve paths: %v\n", err)
		return exitFailed
	}
	if err := paths.EnsureDirectories(); err != nil {
		fmt.Fprintf(stderr, "failed to create required directories: %v\n", err)
		return exitFailed
	}

	logCfg := cfg.Logging
	logCfg.FilePath = paths.AppLogFile
	logger, err := infrastructure.InitializeLogger(logCfg)
	if err != nil {
		fmt.Fprintf(stderr, "failed to initialize logger, using default: %v\n", err)
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()
	paths.LogPathResolution(logger)

	if *historyOf != "" {
		return printHistory(ctx, paths, *historyOf, *historyLimit, stdout, stderr)
	}

	catalog, err := datasets.Catalog(cfg, paths)
	if err != nil {
		logger.Error("Invalid dataset configuration", slog.String("error", err.Error()))
		fmt.Fprintln(stderr, err)
		return exitFailed
	}
	if *only != "" {
		if catalog, err = selectDatasets(catalog, *only); err != nil {
			fmt.Fprintln(stderr, err)
			return exitBadUsage
		}
	}

	started := time.Now()
	runID := infrastructure.GenerateTraceID()
	ctx = infrastructure.WithTraceID(ctx, runID)
	logger = logger.With(slog.String("run_id", runID))

	logger.InfoContext(ctx, "Starting ETL run",
		slog.String("version", config.AppVersion),
		slog.Any("datasets", datasetNames(catalog)),
		slog.Int("workers", cfg.Pipeline.Workers),
		slog.Int("year_min", cfg.Pipeline.YearMin),
		slog.Int("year_max", cfg.Pipeline.YearMax),
	)

	providers, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFromSettings(cfg.Telemetry), logger)
	if err != nil {
		logger.Warn("Telemetry disabled", slog.String("error", err.Error()))
		providers = nil
	}
	if providers != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := providers.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
			}
		}()
	}

	tracer, err := operations.NewJobTracer(providers)
	if err != nil {
		logger.Warn("Job metrics disabled", slog.String("error", err.Error()))
		tracer, _ = operations.NewJobTracer(nil)
	}

	loggers := infrastructure.NewDatasetLoggers(paths.LogsDir, cfg.Logging)
	defer func() {
		if err := loggers.Close(); err != nil {
			logger.Warn("Failed to close dataset logs", slog.String("error", err.Error()))
		}
	}()

	opts := []operations.OrchestratorOption{
		operations.WithWorkers(cfg.Pipeline.Workers),
		operations.WithHeartbeat(cfg.Pipeline.HeartbeatInterval),
		operations.WithRunID(runID),
		operations.WithLogger(logger),
	}
	if paths.HistoryDB != "" {
		store, err := history.Open(paths.HistoryDB)
		if err != nil {
			logger.Warn("Run history disabled", slog.String("path", paths.HistoryDB), slog.String("error", err.Error()))
		} else {
			defer store.Close()
			opts = append(opts, operations.WithRecorder(store))
		}
	}

	runner := operations.NewRunner(
		dataprocessing.NewFileExtractor(),
		exporter.NewCSVWriter(paths),
		paths,
		operations.WithTracer(tracer),
	)

	entries, err := operations.NewOrchestrator(runner, loggers, opts...).RunAll(ctx, catalog)
	if err != nil {
		logger.ErrorContext(ctx, "ETL run rejected", slog.String("error", err.Error()))
		fmt.Fprintln(stderr, err)
		return exitFailed
	}

	fmt.Fprint(stdout, operations.FormatSummary(entries))

	if providers != nil {
		if rm, err := infrastructure.NewRuntimeMetrics(providers.Meter); err == nil {
			logger.DebugContext(ctx, "Runtime statistics", slog.Any("runtime", rm.Collect(ctx, started)))
		}
	}
	if paths.MetricsFile != "" && providers != nil {
		if err := providers.WriteMetricsFile(paths.MetricsFile); err != nil {
			logger.Warn("Failed to write metrics file", slog.String("error", err.Error()))
		}
	}

	failures := operations.CountFailures(entries)
	logger.InfoContext(ctx, "ETL run complete",
		slog.Int("succeeded", len(entries)-failures),
		slog.Int("failed", failures),
	)

	if failures > 0 && cfg.Pipeline.FailOnError {
		return exitFailed
	}
	return exitOK
}

// selectDatasets keeps the catalog entries named in list, in catalog order
func selectDatasets(catalog []operations.DatasetConfig, list string) ([]operations.DatasetConfig, error) {
	wanted := make(map[string]bool)
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			wanted[name] = true
		}
	}
	if len(wanted) == 0 {
		return nil, fmt.Errorf("no datasets selected in %q", list)
	}

	var out []operations.DatasetConfig
	for _, ds := range catalog {
		if wanted[ds.Name] {
			out = append(out, ds)
			delete(wanted, ds.Name)
		}
	}
	if len(wanted) > 0 {
		unknown := make([]string, 0, len(wanted))
		for name := range wanted {
			unknown = append(unknown, name)
		}
		return nil, fmt.Errorf("unknown or disabled datasets: %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

func datasetNames(catalog []operations.DatasetConfig) []string {
	names := make([]string, len(catalog))
	for i, ds := range catalog {
		names[i] = ds.Name
	}
	return names
}

func printHistory(ctx context.Context, paths *config.Paths, dataset string, limit int, stdout, stderr io.Writer) int {
	if paths.HistoryDB == "" {
		fmt.Fprintln(stderr, "run history is disabled (paths.history_db is empty)")
		return exitFailed
	}

	store, err := history.Open(paths.HistoryDB)
	if err != nil {
		fmt.Fprintf(stderr, "failed to open run history: %v\n", err)
		return exitFailed
	}
	defer store.Close()

	records, err := store.ListByDataset(ctx, dataset, limit)
	if err != nil {
		fmt.Fprintf(stderr, "failed to read run history: %v\n", err)
		return exitFailed
	}

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tSTATUS\tREAD\tWRITTEN\tDETAIL")
	for _, r := range records {
		detail := r.OutputPath
		if r.Status != string(operations.StatusSuccess) {
			detail = r.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Status, r.RowsRead, r.RowsWritten, detail)
	}
	if err := w.Flush(); err != nil {
		return exitFailed
	}
	return exitOK
}
