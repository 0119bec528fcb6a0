package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewMetricsWithIsolatedRegistry(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())
	other := NewMetricsWith(prometheus.NewRegistry())

	m.QuotesCreated.Inc()
	m.DuplicatesDetected.WithLabelValues("STRICT").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuotesCreated))
	assert.Equal(t, 0.0, testutil.ToFloat64(other.QuotesCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DuplicatesDetected.WithLabelValues("STRICT")))
}
