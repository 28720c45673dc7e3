// Package app orchestrates a batch validation run over one spreadsheet.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shpitdev/pds-validator/internal/history"
	"github.com/shpitdev/pds-validator/internal/metrics"
	"github.com/shpitdev/pds-validator/internal/pipeline"
	"github.com/shpitdev/pds-validator/internal/sheet"
	"github.com/shpitdev/pds-validator/pkg/pipeline/worker"
)

const timestampLayout = "20060102_150405"

// Run states, logged as the orchestrator moves through a batch.
const (
	StateInit          = "INIT"
	StateProcessing    = "PROCESSING"
	StateWritingOutput = "WRITING_OUTPUT"
	StateArchiving     = "ARCHIVING"
	StateDone          = "DONE"
)

type Options struct {
	InputPath string
	// OutputDir holds the run folder, spreadsheet and archive. Defaults to ".".
	OutputDir string

	RowInterval    time.Duration
	RequestTimeout time.Duration

	// SkipValidated reuses prior score-100 outcomes from History.
	SkipValidated bool
}

// Result describes the artifacts and counts of a finished run.
type Result struct {
	RunID       string
	RunDir      string
	OutputPath  string
	ArchivePath string // "" when no PDF was saved

	Rows       int
	Processed  int
	Skipped    int
	Cached     int
	Valid      int
	Downloaded int // distinct PDFs saved to RunDir
}

// Runner wires the row pipeline stages to the batch state machine.
type Runner struct {
	Locator    pipeline.Locator
	Fetcher    pipeline.Fetcher
	Classifier pipeline.Classifier

	// History and Metrics are optional.
	History *history.Store
	Metrics *metrics.Run

	Logger   *zap.Logger
	Now      func() time.Time
	NewRunID func() string
}

// Run executes one batch. Per-row failures never abort the run; only input,
// filesystem and cancellation errors do.
func (r *Runner) Run(ctx context.Context, opts Options) (Result, error) {
	runID := r.newRunID()
	ts := r.now().Format(timestampLayout)
	logger := r.logger().With(zap.String("run_id", runID))
	runStart := time.Now()

	outDir := strings.TrimSpace(opts.OutputDir)
	if outDir == "" {
		outDir = "."
	}
	res := Result{
		RunID:      runID,
		RunDir:     filepath.Join(outDir, "Valid_PDS_PDFs_"+ts),
		OutputPath: filepath.Join(outDir, "Processed_"+ts+outputExt(opts.InputPath)),
	}

	logger.Info("run state", zap.String("state", StateInit), zap.String("input", opts.InputPath), zap.String("run_dir", res.RunDir))
	if err := os.MkdirAll(res.RunDir, 0o755); err != nil {
		return res, fmt.Errorf("create run folder: %w", err)
	}
	table, err := sheet.ReadFile(opts.InputPath)
	if err != nil {
		return res, fmt.Errorf("read input: %w", err)
	}
	if err := sheet.Normalize(table); err != nil {
		return res, err
	}
	cols := columnsFor(table)
	res.Rows = len(table.Rows)

	plan, err := r.buildPlan(ctx, table, cols, opts.SkipValidated)
	if err != nil {
		return res, err
	}
	res.Skipped = plan.skippedRows
	for i := 0; i < plan.skippedRows; i++ {
		r.Metrics.ObserveRow(metrics.OutcomeSkipped, 0)
	}
	logger.Info("run state",
		zap.String("state", StateProcessing),
		zap.Int("rows", res.Rows),
		zap.Int("to_process", len(plan.items)),
		zap.Int("cached", plan.cachedRows),
		zap.Int("skipped", plan.skippedRows),
		zap.Duration("row_interval", opts.RowInterval),
	)

	proc := &pipeline.Processor{
		Locator:    r.Locator,
		Fetcher:    r.Fetcher,
		Classifier: r.Classifier,
		Dir:        res.RunDir,
		Logger:     logger,
	}
	processStart := time.Now()
	// Products that sanitize to the same filename share one saved PDF.
	savedBy := make(map[string]int)
	_, err = worker.ProcessAllWithCallback(ctx, plan.items,
		func(ctx context.Context, it workItem) timedOutcome {
			start := time.Now()
			out := r.processItem(ctx, proc, it)
			return timedOutcome{Outcome: out, Duration: time.Since(start)}
		},
		func(wr worker.Result[workItem, timedOutcome]) error {
			it, out := wr.Input, wr.Output.Outcome
			writeOutcome(table, cols, it.row, out)

			label := outcomeLabel(it, out)
			r.Metrics.ObserveRow(label, wr.Output.Duration)
			if out.Valid() {
				res.Valid++
				r.Metrics.ObserveDownload(out.File != "")
			}
			if out.File != "" {
				if prev, ok := savedBy[out.File]; ok {
					logger.Warn("saved pdf replaced by a later row",
						zap.String("file", out.File),
						zap.Int("row", it.row+1),
						zap.Int("previous_row", prev+1),
					)
				} else {
					res.Downloaded++
				}
				savedBy[out.File] = it.row
			}
			if it.cached != nil {
				res.Cached++
			} else {
				res.Processed++
			}

			logger.Info("row processed",
				zap.Int("row", it.row+1),
				zap.String("product", it.input.Product),
				zap.String("outcome", label),
				zap.Int("score", out.Score),
				zap.String("reason", out.Reason),
				zap.Duration("duration", wr.Output.Duration.Round(time.Millisecond)),
				zap.String("progress", fmt.Sprintf("%d/%d", wr.Index+1, len(plan.items))),
			)
			return r.record(ctx, runID, it, out)
		},
		worker.Options{Interval: opts.RowInterval, RequestTimeout: opts.RequestTimeout},
	)
	if err != nil {
		return res, fmt.Errorf("process rows: %w", err)
	}
	logger.Info("rows complete",
		zap.Int("processed", res.Processed),
		zap.Int("cached", res.Cached),
		zap.Int("valid", res.Valid),
		zap.Int("downloaded", res.Downloaded),
		zap.Duration("duration", time.Since(processStart).Round(time.Millisecond)),
	)

	logger.Info("run state", zap.String("state", StateWritingOutput), zap.String("output", res.OutputPath))
	if err := sheet.WriteFile(res.OutputPath, table); err != nil {
		return res, fmt.Errorf("write output spreadsheet: %w", err)
	}

	archivePath := filepath.Join(outDir, "Valid_PDS_PDFs_"+ts+".zip")
	n, err := archiveDir(res.RunDir, archivePath, func(files int) {
		logger.Info("run state", zap.String("state", StateArchiving), zap.Int("files", files), zap.String("archive", archivePath))
	})
	if err != nil {
		return res, fmt.Errorf("archive valid pdfs: %w", err)
	}
	if n > 0 {
		res.ArchivePath = archivePath
	}

	logger.Info("run state",
		zap.String("state", StateDone),
		zap.String("output", res.OutputPath),
		zap.String("archive", res.ArchivePath),
		zap.Duration("total", time.Since(runStart).Round(time.Millisecond)),
	)
	return res, nil
}

type timedOutcome struct {
	Outcome  pipeline.Outcome
	Duration time.Duration
}

func (r *Runner) processItem(ctx context.Context, proc *pipeline.Processor, it workItem) pipeline.Outcome {
	if it.cached == nil {
		return proc.Process(ctx, it.input)
	}
	prev := it.cached
	out := pipeline.Outcome{
		WebLink: prev.WebLink,
		Score:   prev.Score,
		Reason:  prev.Reason,
		PDSDate: prev.PDSDate,
	}
	out.File = proc.Save(ctx, it.input.Product, prev.WebLink)
	return out
}

func (r *Runner) record(ctx context.Context, runID string, it workItem, out pipeline.Outcome) error {
	if r.History == nil {
		return nil
	}
	err := r.History.Record(ctx, history.Entry{
		RunID:    runID,
		RowIndex: it.row,
		Product:  it.input.Product,
		APIR:     it.input.APIR,
		WebLink:  out.WebLink,
		Score:    out.Score,
		Reason:   out.Reason,
		PDSDate:  out.PDSDate,
		File:     out.File,
	})
	if err != nil {
		// Ledger write failures are logged, not fatal.
		r.logger().Warn("history record failed", zap.String("run_id", runID), zap.Int("row", it.row+1), zap.Error(err))
	}
	return nil
}

type columns struct {
	apir, product, pdsDate, webLink, score, reason int
}

func columnsFor(t *sheet.Table) columns {
	return columns{
		apir:    t.Index(sheet.ColAPIRCode),
		product: t.Index(sheet.ColProductName),
		pdsDate: t.Index(sheet.ColPDSDate),
		webLink: t.Index(sheet.ColWebLink),
		score:   t.EnsureColumn(sheet.ColScore),
		reason:  t.EnsureColumn(sheet.ColReason),
	}
}

func writeOutcome(t *sheet.Table, c columns, row int, out pipeline.Outcome) {
	t.Set(row, c.webLink, out.WebLink)
	t.Set(row, c.score, strconv.Itoa(out.Score))
	t.Set(row, c.reason, out.Reason)
	t.Set(row, c.pdsDate, out.PDSDate)
}

func outcomeLabel(it workItem, out pipeline.Outcome) string {
	switch {
	case it.cached != nil:
		return metrics.OutcomeCached
	case out.WebLink == pipeline.NotFound:
		return metrics.OutcomeNoPDF
	case out.Score == 100:
		return metrics.OutcomeValid
	case out.Score > 0:
		return metrics.OutcomePartial
	default:
		return metrics.OutcomeInvalid
	}
}

func outputExt(inputPath string) string {
	if sheet.FormatFromPath(inputPath) == sheet.FormatCSV {
		return ".csv"
	}
	return ".xlsx"
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Runner) newRunID() string {
	if r.NewRunID == nil {
		return uuid.NewString()
	}
	return r.NewRunID()
}
