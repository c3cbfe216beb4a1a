package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRelationshipCreated()
		m.RecordTransition("PENDING_AGREEMENT", "ACTIVE", "activate")
		m.RecordShareCalculated(10)
		m.TrackDBOperation("query")(time.Now())
	})
}

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics("umbrella", prometheus.NewRegistry())

	m.RecordTransition("PENDING_AGREEMENT", "ACTIVE", "activate")
	m.RecordTransition("PENDING_AGREEMENT", "ACTIVE", "activate")
	m.RecordShareCalculated(100)
	m.RecordShareCalculated(50.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Transitions.WithLabelValues("PENDING_AGREEMENT", "ACTIVE", "activate")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SharesCalculated))
	assert.Equal(t, 150.5, testutil.ToFloat64(m.ShareAmountTotal))
}
