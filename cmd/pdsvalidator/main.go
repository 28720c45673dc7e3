package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/shpitdev/pds-validator/internal/app"
	"github.com/shpitdev/pds-validator/internal/classify"
	"github.com/shpitdev/pds-validator/internal/config"
	"github.com/shpitdev/pds-validator/internal/fetch"
	"github.com/shpitdev/pds-validator/internal/history"
	"github.com/shpitdev/pds-validator/internal/metrics"
	"github.com/shpitdev/pds-validator/internal/search"
	"github.com/shpitdev/pds-validator/internal/version"
	"github.com/shpitdev/pds-validator/pkg/pipeline/redact"
)

type cli struct {
	out     io.Writer
	logger  *zap.Logger
	verbose bool
	dotenv  string
}

type runFlags struct {
	input         string
	configPath    string
	outputDir     string
	provider      string
	model         string
	rowInterval   time.Duration
	historyDB     string
	skipValidated bool
	metricsAddr   string
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "pdsvalidator",
		Short: "Find and validate Product Disclosure Statements for a spreadsheet of funds",
		Long: `pdsvalidator reads a spreadsheet whose first four columns are
APIR code, Product name, PDS date and Web link. For every product it searches
for a PDS PDF, asks a language model whether page 1 is a current PDS for that
product, writes the score back, and zips the PDFs that scored 100.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.logger != nil {
				return nil
			}
			cfg := zap.NewProductionConfig()
			if c.verbose {
				cfg = zap.NewDevelopmentConfig()
				cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := cfg.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newRunCmd(c), newVersionCmd(c))
	return root
}

func newRunCmd(c *cli) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Validate every row of an input spreadsheet",
		Example: `  pdsvalidator run --input funds.xlsx
  pdsvalidator run --input funds.csv --provider gemini --output-dir out/
  pdsvalidator run --input funds.xlsx --history-db pdsv.db --skip-validated`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.configPath, c.dotenv)
			if err != nil {
				return err
			}
			applyFlags(cmd, f, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return c.run(cmd.Context(), f.input, cfg)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.input, "input", "i", "", "Input spreadsheet (.xlsx or .csv)")
	fl.StringVar(&f.configPath, "config", "", "YAML config file (env: PDSV_CONFIG)")
	fl.StringVarP(&f.outputDir, "output-dir", "o", "", "Directory for the run folder, spreadsheet and archive (env: PDSV_OUTPUT_DIR, default: .)")
	fl.StringVar(&f.provider, "provider", "", "Classifier backend: openai, gemini or anthropic (env: PDSV_PROVIDER, default: openai)")
	fl.StringVar(&f.model, "model", "", "Classifier model name (env: PDSV_MODEL)")
	fl.DurationVar(&f.rowInterval, "row-interval", 0, "Pause between rows (env: PDSV_ROW_INTERVAL, default: 500ms)")
	fl.StringVar(&f.historyDB, "history-db", "", "SQLite file recording row outcomes across runs")
	fl.BoolVar(&f.skipValidated, "skip-validated", false, "Reuse prior score-100 outcomes from --history-db")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus /metrics on this address during the run")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newVersionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(c.out, version.Current)
			return err
		},
	}
}

// applyFlags overlays explicitly set flags on the loaded config.
func applyFlags(cmd *cobra.Command, f runFlags, cfg *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("output-dir") {
		cfg.OutputDir = f.outputDir
	}
	if fl.Changed("provider") {
		cfg.Classifier.Provider = f.provider
	}
	if fl.Changed("model") {
		cfg.Classifier.Model = f.model
	}
	if fl.Changed("row-interval") {
		cfg.Pipeline.RowInterval = f.rowInterval
	}
	if fl.Changed("history-db") {
		cfg.HistoryDB = f.historyDB
	}
	if fl.Changed("skip-validated") {
		cfg.SkipValidated = f.skipValidated
	}
	if fl.Changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
}

func (c *cli) run(ctx context.Context, input string, cfg config.Config) error {
	logger := c.logger

	locator, err := search.New(ctx, search.Config{
		APIKey:   cfg.Search.APIKey,
		EngineID: cfg.Search.EngineID,
		BaseURL:  cfg.Search.BaseURL,
	}, logger)
	if err != nil {
		return err
	}
	completer, err := classify.NewCompleter(ctx, cfg.Backend())
	if err != nil {
		return err
	}

	runner := &app.Runner{
		Locator: locator,
		Fetcher: fetch.New(fetch.Config{
			Timeout:     cfg.Fetch.Timeout,
			UserAgent:   cfg.Fetch.UserAgent,
			InsecureTLS: cfg.Fetch.InsecureTLS,
		}, logger),
		Classifier: classify.New(completer, logger),
		Metrics:    metrics.NewRun(),
		Logger:     logger,
	}

	if cfg.HistoryDB != "" {
		store, err := history.Open(cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer func() {
			_ = store.Close()
		}()
		runner.History = store
	}

	if cfg.MetricsAddr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if _, err := runner.Metrics.Serve(metricsCtx, cfg.MetricsAddr, logger); err != nil {
			return fmt.Errorf("start metrics endpoint: %w", err)
		}
	}

	res, err := runner.Run(ctx, app.Options{
		InputPath:      input,
		OutputDir:      cfg.OutputDir,
		RowInterval:    cfg.Pipeline.RowInterval,
		RequestTimeout: cfg.Pipeline.RequestTimeout,
		SkipValidated:  cfg.SkipValidated,
	})
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(c.out, "Processed %d of %d rows (%d reused, %d skipped); %d valid, %d downloaded\n",
		res.Processed+res.Cached, res.Rows, res.Cached, res.Skipped, res.Valid, res.Downloaded)
	_, _ = fmt.Fprintf(c.out, "Spreadsheet: %s\n", res.OutputPath)
	if res.ArchivePath != "" {
		_, _ = fmt.Fprintf(c.out, "Archive:     %s\n", res.ArchivePath)
	} else {
		_, _ = fmt.Fprintln(c.out, "Archive:     none (no valid PDFs)")
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{out: os.Stdout, dotenv: ".env"}
	if err := newRootCmd(c).ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error:", redact.Secrets(err.Error()))
		stop()
		os.Exit(1)
	}
}
