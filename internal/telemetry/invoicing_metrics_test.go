package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInvoicingMetrics_NilReceiver(t *testing.T) {
	var m *InvoicingMetrics
	assert.NotPanics(t, func() {
		m.InvoiceCreated("t", "club")
		m.Transition("club", "paid")
		m.DunningRun("completed", time.Second)
		m.Notification("invoice", errors.New("smtp down"))
		m.JobDone("invoice:render", time.Millisecond, nil)
	})
}

func TestInvoicingMetrics_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewInvoicingMetrics("test", reg)

	m.Transition("club", "paid")
	m.Transition("club", "paid")
	m.Notification("reminder", nil)
	m.Notification("reminder", errors.New("bounce"))
	m.DunningRun("skipped", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.InvoiceTransitions.WithLabelValues("club", "paid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsSent.WithLabelValues("reminder")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsFailed.WithLabelValues("reminder")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DunningRuns.WithLabelValues("skipped")))

	// A second registry accepts the same metric names.
	assert.NotPanics(t, func() { NewInvoicingMetrics("test", prometheus.NewRegistry()) })
}
