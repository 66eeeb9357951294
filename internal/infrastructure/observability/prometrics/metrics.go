// Package prometrics backs the observability metric ports with Prometheus vectors.
package prometrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
)

// Registry creates instruments. Asking twice for the same name returns the same vector.
type Registry interface {
	Counter(name, help string, labelKeys ...string) observability.Counter
	Histogram(name, help string, buckets []float64, labelKeys ...string) observability.Histogram
}

type registry struct {
	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	namespace  string
	reg        prometheus.Registerer
	log        observability.Logger
	reported   sync.Map
}

// New registers collectors on reg, or on the default registerer when reg is nil.
// Recording with the wrong label set never panics: the sample is dropped and the mismatch logged once.
func New(namespace string, reg prometheus.Registerer, logger observability.Logger) Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &registry{
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		namespace:  namespace,
		reg:        reg,
		log:        logger.With(observability.F("component", "prometrics")),
	}
}

func (r *registry) Counter(name, help string, labelKeys ...string) observability.Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.counters[name]; ok {
		return &counter{v: v, r: r, name: name}
	}
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: r.namespace, Name: name, Help: help}, labelKeys)
	cv = register(r.reg, cv)
	r.counters[name] = cv
	return &counter{v: cv, r: r, name: name}
}

func (r *registry) Histogram(name, help string, buckets []float64, labelKeys ...string) observability.Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.histograms[name]; ok {
		return &histogram{v: v, r: r, name: name}
	}
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace, Name: name, Help: help, Buckets: buckets,
	}, labelKeys)
	hv = register(r.reg, hv)
	r.histograms[name] = hv
	return &histogram{v: hv, r: r, name: name}
}

// register adopts an identical collector that is already registered, e.g. when two
// providers share the default registerer in one process.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (r *registry) mismatch(name string, err error) {
	if _, seen := r.reported.LoadOrStore(name, struct{}{}); !seen {
		r.log.Error("metric_label_mismatch", observability.F("metric", name), observability.Err(err))
	}
}

type counter struct {
	v    *prometheus.CounterVec
	r    *registry
	name string
}

func (c *counter) Add(d float64, labels ...observability.Label) {
	if m, err := c.v.GetMetricWith(labelMap(labels)); err == nil {
		m.Add(d)
	} else {
		c.r.mismatch(c.name, err)
	}
}

func (c *counter) Bind(labels ...observability.Label) observability.BoundCounter {
	m, err := c.v.GetMetricWith(labelMap(labels))
	if err != nil {
		c.r.mismatch(c.name, err)
		return observability.NopCounter().Bind()
	}
	return m
}

type histogram struct {
	v    *prometheus.HistogramVec
	r    *registry
	name string
}

func (h *histogram) Observe(v float64, labels ...observability.Label) {
	if m, err := h.v.GetMetricWith(labelMap(labels)); err == nil {
		m.Observe(v)
	} else {
		h.r.mismatch(h.name, err)
	}
}

func (h *histogram) Bind(labels ...observability.Label) observability.BoundHistogram {
	m, err := h.v.GetMetricWith(labelMap(labels))
	if err != nil {
		h.r.mismatch(h.name, err)
		return observability.NopHistogram().Bind()
	}
	return m
}

func labelMap(ls []observability.Label) prometheus.Labels {
	m := make(prometheus.Labels, len(ls))
	for _, l := range ls {
		m[l.Key] = l.Value
	}
	return m
}
