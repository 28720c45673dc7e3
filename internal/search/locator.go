// Package search locates the public disclosure PDF for a product using the
// Google Custom Search JSON API.
package search

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"github.com/shpitdev/pds-validator/pkg/pipeline/redact"
)

type Config struct {
	APIKey   string
	EngineID string

	// BaseURL overrides the API endpoint (mock upstreams).
	BaseURL string
}

// Locator runs one search per product and returns the top PDF hit.
type Locator struct {
	svc    *customsearch.Service
	cx     string
	logger *zap.Logger
}

// New does not validate credentials; a bad key surfaces per lookup as "".
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Locator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []option.ClientOption{}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	} else {
		opts = append(opts, option.WithoutAuthentication())
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimRight(base, "/")+"/"))
	}
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create custom search service: %w", err)
	}
	return &Locator{svc: svc, cx: strings.TrimSpace(cfg.EngineID), logger: logger}, nil
}

// Query builds the search phrase for a product. The APIR clause is omitted
// when apir is blank.
func Query(product, apir string) string {
	product = strings.TrimSpace(product)
	apir = strings.TrimSpace(apir)
	if apir == "" {
		return fmt.Sprintf("%q %q filetype:pdf", product, "Product Disclosure Statement")
	}
	return fmt.Sprintf("%q %q %q filetype:pdf", product, apir, "Product Disclosure Statement")
}

// Locate returns the link of the top result, or "" when there is none or the
// request fails.
func (l *Locator) Locate(ctx context.Context, product, apir string) string {
	q := Query(product, apir)
	res, err := l.svc.Cse.List().
		Cx(l.cx).
		Q(q).
		FileType("pdf").
		Num(1).
		Context(ctx).
		Do()
	if err != nil {
		l.logger.Warn("search failed", zap.String("product", product), zap.String("error", redact.Secrets(err.Error())))
		return ""
	}
	if res == nil || len(res.Items) == 0 {
		l.logger.Debug("search returned no results", zap.String("product", product))
		return ""
	}
	return strings.TrimSpace(res.Items[0].Link)
}
