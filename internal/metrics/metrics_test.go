package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.UnitRetry("create_chapter")
	m.UnitRetry("create_chapter")
	m.UnitFailure("create_comic", "DUPLICATE_NAME")
	m.ObserveRequest("GET", "/api/comics", 200, 15*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.unitRetries.WithLabelValues("create_chapter")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.unitFailures.WithLabelValues("create_comic", "DUPLICATE_NAME")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/comics", "200")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.UnitRetry("x")
	m.UnitFailure("x", "y")
	m.ObserveRequest("GET", "/", 200, time.Second)
}
