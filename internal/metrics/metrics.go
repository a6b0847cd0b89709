// Package metrics exposes conversion progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/cache"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/tts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mangarecap"

// outcomeOK labels calls that succeeded
const outcomeOK = "ok"

// Metrics holds the converter metrics. It implements tts.Recorder.
type Metrics struct {
	SynthesisAttempts *prometheus.CounterVec
	SynthesisDuration prometheus.Histogram
	Rewrites          *prometheus.CounterVec
	LinesFinished     *prometheus.CounterVec
	LinesInFlight     prometheus.Gauge

	reg      prometheus.Registerer
	gatherer prometheus.Gatherer
}

// New creates the metrics and registers them with reg. A nil reg gets a
// fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		SynthesisAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_attempts_total",
			Help:      "Synthesis calls by outcome",
		}, []string{"outcome"}),
		SynthesisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_duration_seconds",
			Help:      "Latency of synthesis calls",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		Rewrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewrites_total",
			Help:      "Text rewrite calls by outcome",
		}, []string{"outcome"}),
		LinesFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_finished_total",
			Help:      "Lines that reached a terminal status",
		}, []string{"status"}),
		LinesInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lines_in_flight",
			Help:      "Lines currently being converted",
		}),
		reg:      reg,
		gatherer: reg,
	}
}

var _ tts.Recorder = (*Metrics)(nil)

// SynthesisAttempt implements tts.Recorder
func (m *Metrics) SynthesisAttempt(kind tts.ErrorKind, elapsed time.Duration) {
	m.SynthesisAttempts.WithLabelValues(outcome(kind)).Inc()
	m.SynthesisDuration.Observe(elapsed.Seconds())
}

// Rewrite implements tts.Recorder
func (m *Metrics) Rewrite(kind tts.ErrorKind) {
	m.Rewrites.WithLabelValues(outcome(kind)).Inc()
}

// LineStarted implements tts.Recorder
func (m *Metrics) LineStarted() {
	m.LinesInFlight.Inc()
}

// LineFinished implements tts.Recorder
func (m *Metrics) LineFinished(status string) {
	m.LinesInFlight.Dec()
	m.LinesFinished.WithLabelValues(strings.ToLower(status)).Inc()
}

// RegisterCache exports hit and miss counts of a payload cache.
func (m *Metrics) RegisterCache(stats func() cache.Stats) error {
	hits := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_hits_total",
		Help:      "Synthesis payload cache hits",
	}, func() float64 { return float64(stats().Hits) })
	misses := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_misses_total",
		Help:      "Synthesis payload cache misses",
	}, func() float64 { return float64(stats().Misses) })

	if err := m.reg.Register(hits); err != nil {
		return err
	}
	return m.reg.Register(misses)
}

// Handler serves the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("serving metrics", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func outcome(kind tts.ErrorKind) string {
	if kind == "" {
		return outcomeOK
	}
	return strings.ToLower(string(kind))
}
