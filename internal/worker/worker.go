// Package worker consumes background jobs from NATS.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/dukerupert/courtbill/internal/jobs"
	"github.com/dukerupert/courtbill/internal/telemetry"
)

// Config holds worker configuration
type Config struct {
	// WorkerID uniquely identifies this worker instance
	WorkerID string

	// MaxConcurrency is the maximum number of jobs to process concurrently
	MaxConcurrency int

	// SubjectPrefix is the NATS subject prefix jobs are published under
	SubjectPrefix string

	// QueueGroup load balances jobs across worker instances
	QueueGroup string

	// JobTimeout bounds a single job
	JobTimeout time.Duration

	// ShutdownTimeout bounds the wait for in-flight jobs on shutdown
	ShutdownTimeout time.Duration
}

// Redeliverer republishes a failed job for another attempt.
type Redeliverer interface {
	Publish(ctx context.Context, job jobs.Job) error
}

// Worker processes background jobs
type Worker struct {
	config   Config
	invoices jobs.DocumentRegenerator
	dunning  jobs.DunningRunner
	retries  Redeliverer
	logger   zerolog.Logger
	metrics  *telemetry.InvoicingMetrics

	sem      chan struct{}
	inflight sync.WaitGroup
}

// NewWorker creates a new background job worker. dunning may be nil when
// this instance does not run dunning jobs.
func NewWorker(
	invoices jobs.DocumentRegenerator,
	dunning jobs.DunningRunner,
	retries Redeliverer,
	config Config,
	logger zerolog.Logger,
	metrics *telemetry.InvoicingMetrics,
) *Worker {
	// Set defaults
	if config.WorkerID == "" {
		config.WorkerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 5
	}
	if config.SubjectPrefix == "" {
		config.SubjectPrefix = jobs.DefaultSubjectPrefix
	}
	if config.QueueGroup == "" {
		config.QueueGroup = "courtbill-workers"
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 2 * time.Minute
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 30 * time.Second
	}

	return &Worker{
		config:   config,
		invoices: invoices,
		dunning:  dunning,
		retries:  retries,
		logger:   logger.With().Str("component", "worker").Str("worker_id", config.WorkerID).Logger(),
		metrics:  metrics,
		sem:      make(chan struct{}, config.MaxConcurrency),
	}
}

// Start subscribes to the job subjects and processes jobs until ctx is
// cancelled, then drains the subscription and waits for in-flight jobs.
func (w *Worker) Start(ctx context.Context, nc *nats.Conn) error {
	w.logger.Info().
		Str("subject", jobs.Wildcard(w.config.SubjectPrefix)).
		Str("queue_group", w.config.QueueGroup).
		Int("max_concurrency", w.config.MaxConcurrency).
		Msg("worker starting")

	sub, err := nc.QueueSubscribe(jobs.Wildcard(w.config.SubjectPrefix), w.config.QueueGroup, func(msg *nats.Msg) {
		w.Dispatch(ctx, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe to jobs: %w", err)
	}

	<-ctx.Done()
	w.logger.Info().Msg("worker shutting down")

	if err := sub.Drain(); err != nil {
		w.logger.Warn().Err(err).Msg("failed to drain job subscription")
	}
	return w.wait()
}

func (w *Worker) wait() error {
	done := make(chan struct{})
	go func() {
		w.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(w.config.ShutdownTimeout):
		return errors.New("timed out waiting for in-flight jobs")
	}
}

// Dispatch runs one job in the background. It blocks while MaxConcurrency
// jobs are in flight, which holds back further deliveries on the
// subscription.
func (w *Worker) Dispatch(ctx context.Context, data []byte) {
	job, err := jobs.Decode(data)
	if err != nil {
		w.logger.Error().Err(err).Msg("discarding malformed job")
		return
	}

	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		w.logger.Warn().Str("job_id", job.ID.String()).Str("job_type", job.Type).Msg("job dropped on shutdown")
		return
	}

	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		defer func() { <-w.sem }()
		w.run(context.WithoutCancel(ctx), job)
	}()
}

func (w *Worker) run(ctx context.Context, job jobs.Job) {
	start := time.Now()
	log := w.logger.With().
		Str("job_id", job.ID.String()).
		Str("job_type", job.Type).
		Int("attempt", job.Attempt).
		Logger()

	err := w.processJob(ctx, job)
	w.metrics.JobDone(job.Type, time.Since(start), err)
	if err == nil {
		log.Info().Dur("elapsed", time.Since(start)).Msg("job completed")
		return
	}

	next, ok := job.Retry()
	if !ok || w.retries == nil {
		log.Error().Err(err).Msg("job failed permanently")
		return
	}
	log.Warn().Err(err).Msg("job failed, retrying")
	if err := w.retries.Publish(ctx, next); err != nil {
		log.Error().Err(err).Msg("failed to requeue job")
	}
}

// processJob processes a single job
func (w *Worker) processJob(ctx context.Context, job jobs.Job) error {
	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	switch job.Type {
	case jobs.JobTypeRenderInvoice:
		return jobs.ProcessRenderJob(jobCtx, job, w.invoices)

	case jobs.JobTypeDunningRun:
		if w.dunning == nil {
			return errors.New("dunning is not configured on this worker")
		}
		summary, err := jobs.ProcessDunningJob(jobCtx, job, w.dunning)
		if err != nil {
			return err
		}
		w.logger.Info().
			Bool("skipped", summary.Skipped).
			Int("actions", summary.Actions()).
			Int("failures", len(summary.Failures)).
			Msg("dunning job finished")
		return nil

	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}
