// Package metrics exposes station counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Metric names.
const (
	Ticks            = "picolimno_ticks_total"
	SamplesEnqueued  = "picolimno_samples_enqueued_total"
	SamplesDropped   = "picolimno_samples_dropped_total"
	Flushes          = "picolimno_flushes_total"
	AlertTransitions = "picolimno_alert_transitions_total"
	InvalidRange     = "picolimno_invalid_range_total"
	ParameterRefresh = "picolimno_parameter_refresh_total"
	PendingSamples   = "picolimno_pending_samples"
)

// Observer records loop events. Implementations must be safe to call from the
// main loop and from the metrics listener concurrently.
type Observer interface {
	Inc(name string, labels ...string)
	Set(name string, v float64)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Inc(string, ...string) {}
func (Nop) Set(string, float64)   {}

var _ Observer = Nop{}
var _ Observer = (*Prom)(nil)

// Prom keeps station metrics in a private registry.
type Prom struct {
	reg      *prometheus.Registry
	counters map[string]*prometheus.CounterVec
	gauges   map[string]prometheus.Gauge
}

// NewProm creates and registers all station metrics.
func NewProm() *Prom {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	}

	p := &Prom{
		reg: prometheus.NewRegistry(),
		counters: map[string]*prometheus.CounterVec{
			Ticks:            counter(Ticks, "Wake ticks processed, by outcome.", "outcome"),
			SamplesEnqueued:  counter(SamplesEnqueued, "Samples added to the pending batch."),
			SamplesDropped:   counter(SamplesDropped, "Samples dropped because the pending batch overflowed."),
			Flushes:          counter(Flushes, "Batch flush attempts, by result.", "result"),
			AlertTransitions: counter(AlertTransitions, "Alert state transitions, by alert.", "alert"),
			InvalidRange:     counter(InvalidRange, "Range measurements without enough valid readings."),
			ParameterRefresh: counter(ParameterRefresh, "Parameter refresh attempts, by result.", "result"),
		},
		gauges: map[string]prometheus.Gauge{
			PendingSamples: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: PendingSamples,
				Help: "Samples waiting in the pending batch.",
			}),
		},
	}

	for _, c := range p.counters {
		p.reg.MustRegister(c)
	}
	for _, g := range p.gauges {
		p.reg.MustRegister(g)
	}
	return p
}

// Inc increments a counter. Unknown names and label mismatches are ignored.
func (p *Prom) Inc(name string, labels ...string) {
	vec, ok := p.counters[name]
	if !ok {
		return
	}
	c, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return
	}
	c.Inc()
}

// Set updates a gauge.
func (p *Prom) Set(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

// Registry returns the underlying registry.
func (p *Prom) Registry() *prometheus.Registry {
	return p.reg
}

// Handler returns the scrape handler for the station registry.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

// Serve runs /metrics and /healthz on addr until ctx is cancelled.
func (p *Prom) Serve(ctx context.Context, addr string, log logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("metrics listener started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
