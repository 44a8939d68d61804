// Package promobserver exports xmal endpoint events as Prometheus metrics.
//
//	obs, err := promobserver.New(prometheus.DefaultRegisterer, promobserver.Options{})
//	ep, err := xmal.NewEndpointBuilder().WithObserver(obs).Build()
package promobserver

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/trickstertwo/xmal"
)

// Options tunes metric naming.
type Options struct {
	// Namespace prefixes every metric name (default "xmal").
	Namespace string
	// Buckets for the duration histogram in seconds (default prometheus.DefBuckets).
	Buckets []float64
}

// Observer implements xmal.Observer.
type Observer struct {
	events   *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ xmal.Observer = (*Observer)(nil)

// New creates the collectors and registers them with reg. Collectors that
// are already registered under the same names are reused, so several
// endpoints in one process may each call New.
func New(reg prometheus.Registerer, opts Options) (*Observer, error) {
	if opts.Namespace == "" {
		opts.Namespace = "xmal"
	}
	if len(opts.Buckets) == 0 {
		opts.Buckets = prometheus.DefBuckets
	}

	o := &Observer{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Subsystem: "endpoint",
			Name:      "events_total",
			Help:      "Endpoint events by type, interaction pattern and stage",
		}, []string{"endpoint", "type", "interaction", "stage"}),

		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Subsystem: "endpoint",
			Name:      "errors_total",
			Help:      "Endpoint events that carried an error",
		}, []string{"endpoint", "type"}),

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: opts.Namespace,
			Subsystem: "endpoint",
			Name:      "duration_seconds",
			Help:      "Send and receive processing time",
			Buckets:   opts.Buckets,
		}, []string{"endpoint", "type"}),
	}

	if reg == nil {
		return o, nil
	}
	var err error
	if o.events, err = register(reg, o.events); err != nil {
		return nil, err
	}
	if o.errors, err = register(reg, o.errors); err != nil {
		return nil, err
	}
	if o.duration, err = register(reg, o.duration); err != nil {
		return nil, err
	}
	return o, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("promobserver: register: %w", err)
	}
	return c, nil
}

// OnEvent records e.
func (o *Observer) OnEvent(e xmal.Event) {
	t := string(e.Type)
	o.events.WithLabelValues(e.Endpoint, t, e.Interaction, e.Stage).Inc()
	if e.Err != nil {
		o.errors.WithLabelValues(e.Endpoint, t).Inc()
	}
	if e.Duration > 0 {
		o.duration.WithLabelValues(e.Endpoint, t).Observe(e.Duration.Seconds())
	}
}

// Describe and Collect let the observer itself be registered with a custom
// registry instead of through New.
func (o *Observer) Describe(ch chan<- *prometheus.Desc) {
	o.events.Describe(ch)
	o.errors.Describe(ch)
	o.duration.Describe(ch)
}

func (o *Observer) Collect(ch chan<- prometheus.Metric) {
	o.events.Collect(ch)
	o.errors.Collect(ch)
	o.duration.Collect(ch)
}
