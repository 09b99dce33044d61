package prometrics

import (
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
)

type instruments struct {
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram
}

// Instruments registers the service's RED metric families on r and exposes them by MetricKey.
// Unknown keys resolve to no-op instruments.
func Instruments(r *Registry) observability.Metrics {
	return &instruments{
		counters: map[observability.MetricKey]observability.Counter{
			observability.MUsecaseRequests: r.Counter(string(observability.MUsecaseRequests),
				"Total number of use case invocations.", "use_case", "outcome"),
			observability.MHTTPRequests: r.Counter(string(observability.MHTTPRequests),
				"Total number of HTTP requests.", "method", "route", "status"),
			observability.MExternalRequests: r.Counter(string(observability.MExternalRequests),
				"Total number of calls to external peers.", "peer", "endpoint", "outcome"),
		},
		histograms: map[observability.MetricKey]observability.Histogram{
			observability.MUsecaseDuration: r.Histogram(string(observability.MUsecaseDuration),
				"Duration of use case execution in seconds.", nil, "use_case"),
			observability.MHTTPRequestDuration: r.Histogram(string(observability.MHTTPRequestDuration),
				"Duration of HTTP requests in seconds.", nil, "method", "route", "status"),
			observability.MExternalRequestDuration: r.Histogram(string(observability.MExternalRequestDuration),
				"Duration of calls to external peers in seconds.", nil, "peer", "endpoint"),
		},
	}
}

func (m *instruments) Counter(name observability.MetricKey) observability.Counter {
	if c, ok := m.counters[name]; ok {
		return c
	}
	return observability.NopCounter()
}

func (m *instruments) Histogram(name observability.MetricKey) observability.Histogram {
	if h, ok := m.histograms[name]; ok {
		return h
	}
	return observability.NopHistogram()
}
