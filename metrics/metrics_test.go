package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto_social_publisher/compose"
	"auto_social_publisher/publisher"
)

func TestMetrics_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.FlowFinished("post", compose.OutcomePublished)
	m.FlowFinished("post", compose.OutcomePublished)
	m.FlowFinished("email", compose.OutcomeTimedOut)
	m.DeliveryAttempt("post", "publish", nil)
	m.DeliveryAttempt("post", "publish", &publisher.DeliveryError{Op: "feed", Detail: "(#200)"})
	m.DeliveryAttempt("email", "schedule", errors.New("render email: boom"))
	m.MenuChoice("Mass Mailing")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.flows.WithLabelValues("post", "published")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flows.WithLabelValues("email", "timed_out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("post", "publish", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("post", "publish", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("email", "schedule", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.menu.WithLabelValues("Mass Mailing")))
}

func TestNew_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := New(reg)
	require.NoError(t, err)
	b, err := New(reg)
	require.NoError(t, err)

	a.FlowFinished("post", compose.OutcomeReturned)
	assert.Equal(t, 1.0, testutil.ToFloat64(b.flows.WithLabelValues("post", "returned")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.FlowFinished("post", compose.OutcomeAbandoned)
		m.DeliveryAttempt("post", "publish", nil)
		m.MenuChoice("Quitter")
	})
}
