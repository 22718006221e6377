package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementTransition("staged")
		m.IncrementRejection("conflict")
		m.IncrementEmail(true)
		m.IncrementResendRejected()
		m.ObserveCreation(time.Second)
		m.IncrementCreationFailure("account")
		m.IncrementCompensation()
		m.IncrementOrphan("address")
		m.IncrementEventFailure()
	})
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementTransition("staged")
	m.IncrementTransition("staged")
	m.IncrementEmail(false)
	m.IncrementOrphan("address")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Transitions.WithLabelValues("staged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailDeliveries.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Orphans.WithLabelValues("address")))
}
