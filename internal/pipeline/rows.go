// Package pipeline validates a single spreadsheet row: search, fetch, classify
// and, for fully valid documents, download.
package pipeline

import (
	"context"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/shpitdev/pds-validator/internal/classify"
	"github.com/shpitdev/pds-validator/pkg/pipeline/redact"
)

// NotFound is written to the web link column when no usable document exists.
const NotFound = "Not found"

const (
	ReasonNoPDF  = "No PDF"
	ReasonNoText = "No text extracted"
)

// Locator finds a candidate disclosure URL. "" means none.
type Locator interface {
	Locate(ctx context.Context, product, apir string) string
}

// Fetcher reads and downloads documents.
type Fetcher interface {
	FirstPageText(ctx context.Context, url string) string
	Download(ctx context.Context, url, path string) error
}

// Classifier scores a document's first page.
type Classifier interface {
	Classify(ctx context.Context, text, product, apir string) classify.Result
}

// Input is one row's identifying fields.
type Input struct {
	Product string
	APIR    string
}

// Outcome is the derived data written back to a row.
type Outcome struct {
	WebLink string
	Score   int
	Reason  string
	PDSDate string

	// File is the downloaded PDF path, or "" when nothing was saved.
	File string
}

// Valid reports whether the document scored a full 100.
func (o Outcome) Valid() bool {
	return o.Score == 100 && o.WebLink != "" && o.WebLink != NotFound
}

// Processor runs the per-row pipeline, saving valid PDFs into Dir.
type Processor struct {
	Locator    Locator
	Fetcher    Fetcher
	Classifier Classifier
	Dir        string
	Logger     *zap.Logger
}

// Process never fails; every upstream problem is folded into the Outcome.
func (p *Processor) Process(ctx context.Context, in Input) Outcome {
	product := strings.TrimSpace(in.Product)
	apir := strings.TrimSpace(in.APIR)

	url := p.Locator.Locate(ctx, product, apir)
	if url == "" {
		return Outcome{WebLink: NotFound, Score: 0, Reason: ReasonNoPDF}
	}

	text := p.Fetcher.FirstPageText(ctx, url)
	if text == "" {
		return Outcome{WebLink: NotFound, Score: 0, Reason: ReasonNoText}
	}

	res := p.Classifier.Classify(ctx, text, product, apir)
	out := Outcome{
		WebLink: url,
		Score:   res.Score,
		Reason:  res.Reason,
		PDSDate: res.PDSDate,
	}
	if out.Valid() {
		out.File = p.Save(ctx, product, url)
	}
	return out
}

// Save downloads url into Dir as <sanitized product>.pdf and returns the path,
// or "" when the download failed.
func (p *Processor) Save(ctx context.Context, product, url string) string {
	path := filepath.Join(p.Dir, SanitizeFilename(product)+".pdf")
	if err := p.Fetcher.Download(ctx, url, path); err != nil {
		p.logger().Warn("pdf download failed",
			zap.String("product", product),
			zap.String("url", url),
			zap.String("error", redact.Secrets(err.Error())),
		)
		return ""
	}
	return path
}

func (p *Processor) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

var filenameReplacer = strings.NewReplacer(
	`\`, "", "/", "", "*", "", "?", "", ":", "", `"`, "", "<", "", ">", "", "|", "",
)

// SanitizeFilename removes characters that are not allowed in file names.
func SanitizeFilename(name string) string {
	return filenameReplacer.Replace(name)
}
