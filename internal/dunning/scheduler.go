// Package dunning runs the periodic collection pass over unpaid invoices:
// sent invoices past their due date become overdue, overdue invoices get
// escalating reminders, and long overdue ones suspend the billed entity.
package dunning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/courtbill/internal/domain"
	"github.com/dukerupert/courtbill/internal/telemetry"
)

// Phase names, also used as metric labels.
const (
	PhaseOverdue    = "overdue"
	PhaseReminder   = "reminder"
	PhaseSuspension = "suspension"
)

// Failure is one invoice the run could not process.
type Failure struct {
	Phase         string
	InvoiceID     uuid.UUID
	InvoiceNumber string
	Err           error
}

// RunSummary reports what a run did.
type RunSummary struct {
	StartedAt  time.Time
	FinishedAt time.Time

	// Skipped is set when another run held the lock.
	Skipped bool

	MarkedOverdue int
	RemindersSent int
	Suspended     int
	Failures      []Failure
}

// Actions is the number of state changes the run made.
func (s *RunSummary) Actions() int {
	return s.MarkedOverdue + s.RemindersSent + s.Suspended
}

// Scheduler drives dunning runs.
type Scheduler struct {
	invoices domain.InvoiceService
	locker   Locker
	cfg      Config
	logger   zerolog.Logger
	metrics  *telemetry.InvoicingMetrics

	// Now is overridable in tests.
	Now func() time.Time
}

// NewScheduler creates a Scheduler. A nil locker falls back to an
// in-process lock.
func NewScheduler(invoices domain.InvoiceService, locker Locker, cfg Config, logger zerolog.Logger, metrics *telemetry.InvoicingMetrics) (*Scheduler, error) {
	if invoices == nil {
		return nil, errors.New("dunning: invoice service is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("dunning: %w", err)
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Scheduler{
		invoices: invoices,
		locker:   locker,
		cfg:      cfg.withDefaults(),
		logger:   logger.With().Str("component", "dunning").Logger(),
		metrics:  metrics,
		Now:      time.Now,
	}, nil
}

// Start runs RunOnce every Interval until ctx is cancelled. The first run
// starts immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.cfg.Interval).Msg("dunning scheduler started")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("dunning run failed")
		}
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("dunning scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs one dunning pass. Per-invoice failures are collected in
// the summary; an error is returned only when the run itself could not
// proceed.
func (s *Scheduler) RunOnce(ctx context.Context) (*RunSummary, error) {
	summary := &RunSummary{StartedAt: s.Now()}

	token, ok, err := s.locker.TryLock(ctx, RunLockKey, s.cfg.LockTTL)
	if err != nil {
		s.metrics.DunningRun("error", 0)
		return nil, fmt.Errorf("acquire dunning lock: %w", err)
	}
	if !ok {
		summary.Skipped = true
		summary.FinishedAt = s.Now()
		s.metrics.DunningRun("skipped", 0)
		s.logger.Info().Msg("dunning run skipped, another run holds the lock")
		return summary, nil
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), RunLockKey, token); err != nil {
			s.logger.Warn().Err(err).Msg("failed to release dunning lock")
		}
	}()

	ctx = domain.NewContextWithActor(ctx, domain.SystemActor("dunning"))
	run := &runState{summary: summary}

	err = s.run(ctx, run)
	summary.FinishedAt = s.Now()
	elapsed := summary.FinishedAt.Sub(summary.StartedAt)

	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case len(summary.Failures) > 0:
		result = "partial"
	}
	s.metrics.DunningRun(result, elapsed)

	s.logger.Info().
		Str("result", result).
		Int("marked_overdue", summary.MarkedOverdue).
		Int("reminders_sent", summary.RemindersSent).
		Int("suspended", summary.Suspended).
		Int("failures", len(summary.Failures)).
		Dur("elapsed", elapsed).
		Msg("dunning run finished")

	return summary, err
}

func (s *Scheduler) run(ctx context.Context, run *runState) error {
	today := s.Now()

	candidates, err := s.invoices.ListOverdueCandidates(ctx, today)
	if err != nil {
		return fmt.Errorf("list overdue candidates: %w", err)
	}
	s.each(ctx, run, PhaseOverdue, candidates, func(ctx context.Context, inv *domain.Invoice) (bool, error) {
		_, changed, err := s.invoices.MarkOverdue(ctx, inv.ID)
		return changed, err
	})

	overdue, err := s.invoices.ListOverdue(ctx)
	if err != nil {
		return fmt.Errorf("list overdue invoices: %w", err)
	}
	due := make([]domain.Invoice, 0, len(overdue))
	for i := range overdue {
		if s.cfg.ReminderPolicy.Due(&overdue[i], today) {
			due = append(due, overdue[i])
		}
	}
	// The list is a snapshot; SendDueReminder re-checks the policy under the
	// row lock, so a concurrent run cannot remind twice.
	s.each(ctx, run, PhaseReminder, due, func(ctx context.Context, inv *domain.Invoice) (bool, error) {
		_, sent, err := s.invoices.SendDueReminder(ctx, inv.ID, today)
		return sent, err
	})

	s.each(ctx, run, PhaseSuspension, s.suspensionCandidates(overdue, today), func(ctx context.Context, inv *domain.Invoice) (bool, error) {
		return s.invoices.SuspendForNonPayment(ctx, inv.ID)
	})

	return ctx.Err()
}

// suspensionCandidates picks one invoice per entity past the grace period.
// overdue is ordered by due date, so the oldest debt is the one reported.
func (s *Scheduler) suspensionCandidates(overdue []domain.Invoice, now time.Time) []domain.Invoice {
	type entityKey struct {
		t  domain.EntityType
		id uuid.UUID
	}
	seen := make(map[entityKey]bool)
	var out []domain.Invoice
	for _, inv := range overdue {
		if inv.DaysOverdue(now) <= s.cfg.SuspensionGraceDays {
			continue
		}
		k := entityKey{inv.EntityType, inv.EntityID}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, inv)
	}
	return out
}

type runState struct {
	mu      sync.Mutex
	summary *RunSummary
}

func (r *runState) record(phase string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch phase {
	case PhaseOverdue:
		r.summary.MarkedOverdue++
	case PhaseReminder:
		r.summary.RemindersSent++
	case PhaseSuspension:
		r.summary.Suspended++
	}
}

func (r *runState) fail(f Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.Failures = append(r.summary.Failures, f)
}

// each applies fn to every invoice with bounded concurrency. A failing
// invoice is recorded and never stops its siblings.
func (s *Scheduler) each(ctx context.Context, run *runState, phase string, invoices []domain.Invoice, fn func(context.Context, *domain.Invoice) (bool, error)) {
	if len(invoices) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)

	for i := range invoices {
		inv := &invoices[i]
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			changed, err := fn(ctx, inv)
			if err != nil {
				s.metrics.DunningFailure(phase)
				run.fail(Failure{Phase: phase, InvoiceID: inv.ID, InvoiceNumber: inv.InvoiceNumber, Err: err})
				s.logger.Error().
					Err(err).
					Str("phase", phase).
					Str("invoice_id", inv.ID.String()).
					Str("invoice_number", inv.InvoiceNumber).
					Msg("dunning action failed")
				return nil
			}
			if changed {
				s.metrics.DunningAction(phase)
				run.record(phase)
			}
			return nil
		})
	}
	_ = g.Wait()
}
