// Package observability assembles the Observability provider from concrete adapters.
package observability

import (
	"sync"

	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
)

type provider struct {
	tracer  observability.Tracer
	logger  observability.Logger
	metrics observability.Metrics
}

func (p *provider) Tracer() observability.Tracer   { return p.tracer }
func (p *provider) Logger() observability.Logger   { return p.logger }
func (p *provider) Metrics() observability.Metrics { return p.metrics }

// instrumentTable resolves registered instruments. A lookup for an unregistered key
// returns a no-op and is logged once per key, so a typo shows up without breaking the call.
type instrumentTable struct {
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram
	log        observability.Logger
	missed     sync.Map
}

func (t *instrumentTable) Counter(name observability.MetricKey) observability.Counter {
	if c, ok := t.counters[name]; ok {
		return c
	}
	t.miss(name, "counter")
	return observability.NopCounter()
}

func (t *instrumentTable) Histogram(name observability.MetricKey) observability.Histogram {
	if h, ok := t.histograms[name]; ok {
		return h
	}
	t.miss(name, "histogram")
	return observability.NopHistogram()
}

func (t *instrumentTable) miss(name observability.MetricKey, kind string) {
	if _, seen := t.missed.LoadOrStore(name, struct{}{}); !seen {
		t.log.Warn("metric_not_registered",
			observability.F("metric", string(name)),
			observability.F("kind", kind),
		)
	}
}

// New assembles a provider from a tracer, a logger and the registered instruments.
// Nil parts fall back to no-ops; with no instruments at all, Metrics() is the no-op set.
func New(
	tracer observability.Tracer,
	logger observability.Logger,
	counters map[observability.MetricKey]observability.Counter,
	histograms map[observability.MetricKey]observability.Histogram,
) observability.Observability {
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	p := &provider{tracer: tracer, logger: logger, metrics: observability.NopMetrics()}
	if len(counters) == 0 && len(histograms) == 0 {
		return p
	}

	table := &instrumentTable{
		counters:   make(map[observability.MetricKey]observability.Counter, len(counters)),
		histograms: make(map[observability.MetricKey]observability.Histogram, len(histograms)),
		log:        logger.With(observability.F("component", "metrics")),
	}
	for k, v := range counters {
		if v != nil {
			table.counters[k] = v
		}
	}
	for k, v := range histograms {
		if v != nil {
			table.histograms[k] = v
		}
	}
	p.metrics = table
	return p
}
