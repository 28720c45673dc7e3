// Package metrics exposes Prometheus telemetry for a validation run.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Row outcome labels.
const (
	OutcomeValid   = "valid"
	OutcomePartial = "partial"
	OutcomeInvalid = "invalid"
	OutcomeNoPDF   = "not_found"
	OutcomeCached  = "cached"
	OutcomeSkipped = "skipped"
)

// Download status labels.
const (
	DownloadOK     = "ok"
	DownloadFailed = "failed"
)

// Run holds the collectors for one run on its own registry.
type Run struct {
	Registry    *prometheus.Registry
	Rows        *prometheus.CounterVec
	Downloads   *prometheus.CounterVec
	RowDuration prometheus.Histogram
}

func NewRun() *Run {
	reg := prometheus.NewRegistry()
	m := &Run{
		Registry: reg,
		Rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pdsv_rows_total",
			Help: "Rows handled, by outcome.",
		}, []string{"outcome"}),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pdsv_downloads_total",
			Help: "PDF downloads attempted, by status.",
		}, []string{"status"}),
		RowDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pdsv_row_duration_seconds",
			Help:    "Wall time to process one row.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
	}
	reg.MustRegister(m.Rows, m.Downloads, m.RowDuration)
	return m
}

func (m *Run) ObserveRow(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Rows.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSkipped {
		m.RowDuration.Observe(d.Seconds())
	}
}

func (m *Run) ObserveDownload(ok bool) {
	if m == nil {
		return
	}
	status := DownloadOK
	if !ok {
		status = DownloadFailed
	}
	m.Downloads.WithLabelValues(status).Inc()
}

// Serve exposes /metrics on addr until ctx is done. It returns once the
// listener is bound so callers know the endpoint is live.
func (m *Run) Serve(ctx context.Context, addr string, logger *zap.Logger) (net.Addr, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("metrics endpoint listening", zap.String("addr", ln.Addr().String()))
	return ln.Addr(), nil
}
