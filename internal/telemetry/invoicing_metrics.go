package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// InvoicingMetrics holds Prometheus metrics for invoicing and dunning.
// All recording methods are safe on a nil receiver so components can run
// without metrics in tests and CLI commands.
type InvoicingMetrics struct {
	// Invoice lifecycle
	InvoicesCreated    *prometheus.CounterVec
	InvoiceTransitions *prometheus.CounterVec
	RevenueCollected   *prometheus.CounterVec

	// Dunning
	DunningRuns      *prometheus.CounterVec
	DunningActions   *prometheus.CounterVec
	DunningFailures  *prometheus.CounterVec
	DunningDuration  prometheus.Histogram
	RemindersSent    *prometheus.CounterVec
	EntitySuspended  *prometheus.CounterVec
	NumberCollisions prometheus.Counter

	// Gateway
	GatewayLatency   *prometheus.HistogramVec
	GatewayErrors    *prometheus.CounterVec
	WebhookReceived  *prometheus.CounterVec
	WebhookProcessed *prometheus.CounterVec
	WebhookFailed    *prometheus.CounterVec

	// Notifications and documents
	NotificationsSent   *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec
	DocumentsRendered   prometheus.Counter

	// Background jobs
	JobsEnqueued  *prometheus.CounterVec
	JobsProcessed *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
}

// NewInvoicingMetrics creates all metrics and registers them with reg.
func NewInvoicingMetrics(namespace string, reg prometheus.Registerer) *InvoicingMetrics {
	if namespace == "" {
		namespace = "courtbill"
	}
	factory := promauto.With(reg)

	return &InvoicingMetrics{
		// =======================================================================
		// Invoice lifecycle
		// =======================================================================
		InvoicesCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "invoice",
				Name:      "created_total",
				Help:      "Total invoices created",
			},
			[]string{"tenant_id", "entity_type"},
		),
		InvoiceTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "invoice",
				Name:      "transitions_total",
				Help:      "Total invoice status transitions",
			},
			[]string{"entity_type", "status"},
		),
		RevenueCollected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "invoice",
				Name:      "revenue_collected_total",
				Help:      "Gross amount of paid invoices in major currency units",
			},
			[]string{"tenant_id", "currency"},
		),

		// =======================================================================
		// Dunning
		// =======================================================================
		DunningRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dunning",
				Name:      "runs_total",
				Help:      "Dunning runs by result",
			},
			[]string{"result"}, // completed, skipped, failed
		),
		DunningActions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dunning",
				Name:      "actions_total",
				Help:      "Invoices acted upon by the dunning run, per phase",
			},
			[]string{"phase"},
		),
		DunningFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dunning",
				Name:      "failures_total",
				Help:      "Per-invoice dunning failures, per phase",
			},
			[]string{"phase"},
		),
		DunningDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "dunning",
				Name:      "run_duration_seconds",
				Help:      "Duration of a complete dunning run",
				Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 300},
			},
		),
		RemindersSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dunning",
				Name:      "reminders_sent_total",
				Help:      "Payment reminders sent by level",
			},
			[]string{"level"},
		),
		EntitySuspended: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dunning",
				Name:      "suspensions_total",
				Help:      "Entities suspended for non-payment",
			},
			[]string{"entity_type"},
		),
		NumberCollisions: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "invoice",
				Name:      "number_collisions_total",
				Help:      "Invoice number collisions that triggered a retry",
			},
		),

		// =======================================================================
		// Gateway
		// =======================================================================
		GatewayLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "stripe_api_duration_seconds",
				Help:      "Stripe API call duration (helps differentiate app slowness from Stripe issues)",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
		GatewayErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "errors_total",
				Help:      "Failed gateway calls after retries",
			},
			[]string{"operation", "transient"},
		),
		WebhookReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "webhooks_received_total",
				Help:      "Webhook events received",
			},
			[]string{"event_type"},
		),
		WebhookProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "webhooks_processed_total",
				Help:      "Webhook events processed, including duplicates",
			},
			[]string{"event_type", "outcome"}, // outcome: applied, duplicate, ignored
		),
		WebhookFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "webhooks_failed_total",
				Help:      "Webhook events that failed processing",
			},
			[]string{"event_type"},
		),

		// =======================================================================
		// Notifications and documents
		// =======================================================================
		NotificationsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notification",
				Name:      "sent_total",
				Help:      "Notifications delivered",
			},
			[]string{"kind"},
		),
		NotificationsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notification",
				Name:      "failed_total",
				Help:      "Notifications that could not be delivered",
			},
			[]string{"kind"},
		),
		DocumentsRendered: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "document",
				Name:      "rendered_total",
				Help:      "Invoice documents rendered",
			},
		),

		// =======================================================================
		// Background jobs
		// =======================================================================
		JobsEnqueued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jobs",
				Name:      "enqueued_total",
				Help:      "Jobs published to the queue",
			},
			[]string{"job_type"},
		),
		JobsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jobs",
				Name:      "processed_total",
				Help:      "Jobs processed successfully",
			},
			[]string{"job_type"},
		),
		JobsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jobs",
				Name:      "failed_total",
				Help:      "Jobs that failed",
			},
			[]string{"job_type"},
		),
		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "jobs",
				Name:      "duration_seconds",
				Help:      "Job processing duration",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 30},
			},
			[]string{"job_type"},
		),
	}
}

func (m *InvoicingMetrics) InvoiceCreated(tenantID, entityType string) {
	if m == nil {
		return
	}
	m.InvoicesCreated.WithLabelValues(tenantID, entityType).Inc()
}

func (m *InvoicingMetrics) Transition(entityType, status string) {
	if m == nil {
		return
	}
	m.InvoiceTransitions.WithLabelValues(entityType, status).Inc()
}

func (m *InvoicingMetrics) Revenue(tenantID, currency string, amount float64) {
	if m == nil {
		return
	}
	m.RevenueCollected.WithLabelValues(tenantID, currency).Add(amount)
}

func (m *InvoicingMetrics) NumberCollision() {
	if m == nil {
		return
	}
	m.NumberCollisions.Inc()
}

func (m *InvoicingMetrics) DunningRun(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.DunningRuns.WithLabelValues(result).Inc()
	if result != "skipped" {
		m.DunningDuration.Observe(elapsed.Seconds())
	}
}

func (m *InvoicingMetrics) DunningAction(phase string) {
	if m == nil {
		return
	}
	m.DunningActions.WithLabelValues(phase).Inc()
}

func (m *InvoicingMetrics) DunningFailure(phase string) {
	if m == nil {
		return
	}
	m.DunningFailures.WithLabelValues(phase).Inc()
}

func (m *InvoicingMetrics) ReminderSent(level string) {
	if m == nil {
		return
	}
	m.RemindersSent.WithLabelValues(level).Inc()
}

func (m *InvoicingMetrics) Suspended(entityType string) {
	if m == nil {
		return
	}
	m.EntitySuspended.WithLabelValues(entityType).Inc()
}

// ObserveGateway records the latency of one gateway call.
func (m *InvoicingMetrics) ObserveGateway(operation string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.GatewayLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *InvoicingMetrics) GatewayError(operation string, transient bool) {
	if m == nil {
		return
	}
	t := "false"
	if transient {
		t = "true"
	}
	m.GatewayErrors.WithLabelValues(operation, t).Inc()
}

func (m *InvoicingMetrics) Webhook(eventType string) {
	if m == nil {
		return
	}
	m.WebhookReceived.WithLabelValues(eventType).Inc()
}

func (m *InvoicingMetrics) WebhookOutcome(eventType, outcome string) {
	if m == nil {
		return
	}
	m.WebhookProcessed.WithLabelValues(eventType, outcome).Inc()
}

func (m *InvoicingMetrics) WebhookFailure(eventType string) {
	if m == nil {
		return
	}
	m.WebhookFailed.WithLabelValues(eventType).Inc()
}

func (m *InvoicingMetrics) Notification(kind string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.NotificationsFailed.WithLabelValues(kind).Inc()
		return
	}
	m.NotificationsSent.WithLabelValues(kind).Inc()
}

func (m *InvoicingMetrics) DocumentRendered() {
	if m == nil {
		return
	}
	m.DocumentsRendered.Inc()
}

func (m *InvoicingMetrics) JobEnqueued(jobType string) {
	if m == nil {
		return
	}
	m.JobsEnqueued.WithLabelValues(jobType).Inc()
}

// JobDone records the outcome and duration of a processed job.
func (m *InvoicingMetrics) JobDone(jobType string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.JobDuration.WithLabelValues(jobType).Observe(elapsed.Seconds())
	if err != nil {
		m.JobsFailed.WithLabelValues(jobType).Inc()
		return
	}
	m.JobsProcessed.WithLabelValues(jobType).Inc()
}
