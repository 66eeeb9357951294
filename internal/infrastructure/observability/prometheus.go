package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
)

// NewWithPrometheus registers every instrument the service records and assembles the provider.
// Label sets here must match the ones used at the call sites.
func NewWithPrometheus(
	namespace string,
	reg prometheus.Registerer,
	tracer observability.Tracer,
	logger observability.Logger,
) observability.Observability {
	r := prometrics.New(namespace, reg, logger)

	counters := map[observability.MetricKey]observability.Counter{
		observability.MUsecaseRequests: r.Counter(string(observability.MUsecaseRequests),
			"Total number of use case invocations.", "use_case", "outcome"),
		observability.MHTTPRequests: r.Counter(string(observability.MHTTPRequests),
			"Total number of HTTP requests.", "method", "route", "status"),
		observability.MExternalRequests: r.Counter(string(observability.MExternalRequests),
			"Calls to payment providers, the event bus and brokers.", "peer", "endpoint", "outcome"),
		observability.MStockDiscrepancies: r.Counter(string(observability.MStockDiscrepancies),
			"Paid order lines that could not be fully taken out of stock.", "item_id"),
		observability.MEventsHandled: r.Counter(string(observability.MEventsHandled),
			"Domain events handled by background workers.", "event", "outcome"),
	}
	histograms := map[observability.MetricKey]observability.Histogram{
		observability.MUsecaseDuration: r.Histogram(string(observability.MUsecaseDuration),
			"Duration of use case execution in seconds.", prometheus.DefBuckets, "use_case"),
		observability.MHTTPRequestDuration: r.Histogram(string(observability.MHTTPRequestDuration),
			"Duration of HTTP requests in seconds.", prometheus.DefBuckets, "method", "route"),
		observability.MExternalRequestDuration: r.Histogram(string(observability.MExternalRequestDuration),
			"Duration of outbound calls in seconds.", prometheus.DefBuckets, "peer", "endpoint"),
	}

	return New(tracer, logger, counters, histograms)
}
