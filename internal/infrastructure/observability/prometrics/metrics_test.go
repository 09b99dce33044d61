package prometrics

import (
	"testing"

	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentsRecordUseCaseOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := Instruments(NewWithRegisterer(reg, ""))

	c := metrics.Counter(observability.MUsecaseRequests)
	c.Add(1, observability.L("use_case", "order.commit"), observability.L("outcome", "success"))
	c.Bind(observability.L("use_case", "order.commit"), observability.L("outcome", "success")).Add(2)

	metrics.Histogram(observability.MUsecaseDuration).Observe(0.2, observability.L("use_case", "order.commit"))

	count, err := testutil.GatherAndCount(reg, "usecase_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = testutil.GatherAndCount(reg, "usecase_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRegistryReusesVectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg, "shop")

	a := r.Counter("things_total", "things", "kind")
	b := r.Counter("things_total", "things", "kind")
	a.Add(1, observability.L("kind", "x"))
	b.Add(1, observability.L("kind", "x"))

	assert.Equal(t, 2.0, testutil.ToFloat64(a.(*counter).v.WithLabelValues("x")))
}

func TestUnknownKeyIsNop(t *testing.T) {
	metrics := Instruments(NewWithRegisterer(prometheus.NewRegistry(), ""))
	assert.NotPanics(t, func() {
		metrics.Counter("missing").Add(1)
		metrics.Histogram("missing").Observe(1)
	})
}
