package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.NotificationsSent.WithLabelValues("not_accepted").Inc()
	m.NotificationsSent.WithLabelValues("not_accepted").Inc()
	m.DrainCursor.WithLabelValues("not_accepted").Set(14)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.NotificationsSent.WithLabelValues("not_accepted")))
	assert.Equal(t, 14.0, testutil.ToFloat64(m.DrainCursor.WithLabelValues("not_accepted")))
}

func TestDefaultIsSingleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}
