// Package jobs defines the background jobs of the invoicing service and the
// NATS queue they travel on.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dukerupert/courtbill/internal/telemetry"
)

// DefaultSubjectPrefix is the NATS subject prefix jobs are published under.
// A job of type "invoice:render" travels on "courtbill.jobs.invoice:render".
const DefaultSubjectPrefix = "courtbill.jobs"

// DefaultMaxAttempts is how often a failing job is delivered in total.
const DefaultMaxAttempts = 3

// Job is the envelope published for every job.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
}

// Retry returns the job for its next attempt, or false when the attempts
// are used up.
func (j Job) Retry() (Job, bool) {
	if j.Attempt >= j.MaxAttempts {
		return j, false
	}
	j.Attempt++
	return j, true
}

// Publisher is the subset of *nats.Conn the queue needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Queue publishes jobs to NATS.
type Queue struct {
	conn    Publisher
	prefix  string
	logger  zerolog.Logger
	metrics *telemetry.InvoicingMetrics
}

// NewQueue creates a Queue. An empty prefix uses DefaultSubjectPrefix.
func NewQueue(conn Publisher, prefix string, logger zerolog.Logger, metrics *telemetry.InvoicingMetrics) *Queue {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Queue{
		conn:    conn,
		prefix:  prefix,
		logger:  logger.With().Str("component", "job_queue").Logger(),
		metrics: metrics,
	}
}

// Subject returns the subject jobs of jobType are published on.
func (q *Queue) Subject(jobType string) string {
	return Subject(q.prefix, jobType)
}

// Subject joins prefix and jobType into a NATS subject.
func Subject(prefix, jobType string) string {
	return prefix + "." + jobType
}

// Wildcard matches every job subject under prefix.
func Wildcard(prefix string) string {
	return prefix + ".>"
}

// Enqueue publishes a new job.
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	return q.Publish(ctx, Job{
		ID:          uuid.New(),
		Type:        jobType,
		Payload:     raw,
		Attempt:     1,
		MaxAttempts: DefaultMaxAttempts,
		EnqueuedAt:  time.Now().UTC(),
	})
}

// Publish sends job as is. Workers use it to redeliver failed jobs.
func (q *Queue) Publish(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if job.Type == "" {
		return errors.New("job type is required")
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.conn.Publish(q.Subject(job.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", job.Type, err)
	}

	q.metrics.JobEnqueued(job.Type)
	q.logger.Debug().
		Str("job_id", job.ID.String()).
		Str("job_type", job.Type).
		Int("attempt", job.Attempt).
		Msg("job enqueued")
	return nil
}

// Decode parses a published job.
func Decode(data []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.Type == "" {
		return Job{}, errors.New("job has no type")
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = DefaultMaxAttempts
	}
	if job.Attempt == 0 {
		job.Attempt = 1
	}
	return job, nil
}
