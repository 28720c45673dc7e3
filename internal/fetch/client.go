// Package fetch downloads disclosure documents and extracts their first page.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shpitdev/pds-validator/pkg/pipeline/redact"
)

const (
	DefaultTimeout   = 15 * time.Second
	DefaultUserAgent = "Mozilla/5.0"

	// maxDocumentBytes caps how much of a response is buffered for text
	// extraction. Download streams to disk and is not capped.
	maxDocumentBytes = 64 << 20
)

// ErrIdleTimeout reports that a host sent no data for longer than the
// configured timeout.
var ErrIdleTimeout = errors.New("fetch: no data received within timeout")

type Config struct {
	// Timeout bounds connecting, waiting for headers and each gap between
	// body reads. A slow transfer that keeps making progress is not cut off.
	Timeout   time.Duration
	UserAgent string

	// InsecureTLS disables certificate verification. Several disclosure hosts
	// serve broken chains, so this defaults to on in the CLI config.
	InsecureTLS bool

	// HTTPClient overrides the constructed client (tests).
	HTTPClient *http.Client
}

// Client fetches documents over HTTP.
type Client struct {
	http      *http.Client
	timeout   time.Duration
	userAgent string
	logger    *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = newHTTPClient(cfg.Timeout, cfg.InsecureTLS)
	}
	return &Client{
		http:      hc,
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

func newHTTPClient(timeout time.Duration, insecure bool) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	tr.TLSHandshakeTimeout = timeout
	tr.ResponseHeaderTimeout = timeout
	if insecure {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // disclosure hosts with broken chains
	}
	return &http.Client{Transport: tr}
}

// FirstPageText downloads url and returns the plain text of its first page.
//
// Every failure (transport, status, content type, parse) is logged and yields "".
func (c *Client) FirstPageText(ctx context.Context, url string) string {
	data, err := c.fetchPDF(ctx, url)
	if err != nil {
		c.logger.Warn("pdf fetch failed", zap.String("url", url), zap.String("error", redact.Secrets(err.Error())))
		return ""
	}
	text, err := FirstPageText(data)
	if err != nil {
		c.logger.Warn("pdf extract failed", zap.String("url", url), zap.String("error", redact.Secrets(err.Error())))
		return ""
	}
	return text
}

func (c *Client) fetchPDF(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK || !IsPDFContentType(resp.Header.Get("Content-Type")) {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, newHTTPError("fetchPDF", resp, b)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read pdf body: %w", err)
	}
	if len(b) > maxDocumentBytes {
		return nil, fmt.Errorf("pdf too large: more than %d bytes", maxDocumentBytes)
	}
	return b, nil
}

// Download streams url into path. Non-2xx responses are errors; a partially
// written file is removed.
func (c *Client) Download(ctx context.Context, url, path string) error {
	resp, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return newHTTPError("download", resp, b)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	timer := time.AfterFunc(c.timeout, func() { cancel(ErrIdleTimeout) })

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		timer.Stop()
		cancel(nil)
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/pdf")
	req.Header.Set("Referer", url)
	resp, err := c.http.Do(req)
	if err != nil {
		timer.Stop()
		if cause := context.Cause(ctx); errors.Is(cause, ErrIdleTimeout) {
			err = fmt.Errorf("%w: %w", cause, err)
		}
		cancel(nil)
		return nil, err
	}
	resp.Body = &idleBody{ReadCloser: resp.Body, ctx: ctx, cancel: cancel, timer: timer, timeout: c.timeout}
	return resp, nil
}

// idleBody restarts the timeout on every read that returns data.
type idleBody struct {
	io.ReadCloser
	ctx     context.Context
	cancel  context.CancelCauseFunc
	timer   *time.Timer
	timeout time.Duration
}

func (b *idleBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if n > 0 {
		b.timer.Reset(b.timeout)
	}
	if err != nil && err != io.EOF {
		if cause := context.Cause(b.ctx); errors.Is(cause, ErrIdleTimeout) {
			err = fmt.Errorf("%w: %w", cause, err)
		}
	}
	return n, err
}

func (b *idleBody) Close() error {
	b.timer.Stop()
	err := b.ReadCloser.Close()
	b.cancel(nil)
	return err
}

// IsPDFContentType reports whether a Content-Type header value names a PDF.
func IsPDFContentType(v string) bool {
	return strings.Contains(strings.ToLower(v), "application/pdf")
}
