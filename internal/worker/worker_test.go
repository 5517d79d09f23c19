package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/courtbill/internal/domain"
	"github.com/dukerupert/courtbill/internal/dunning"
	"github.com/dukerupert/courtbill/internal/jobs"
)

type fakeInvoices struct {
	mu      sync.Mutex
	calls   []uuid.UUID
	err     error
	block   chan struct{}
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (f *fakeInvoices) RegenerateDocument(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Invoice{ID: id}, nil
}

type fakeDunning struct {
	runs atomic.Int32
}

func (f *fakeDunning) RunOnce(ctx context.Context) (*dunning.RunSummary, error) {
	f.runs.Add(1)
	return &dunning.RunSummary{}, nil
}

type fakeRetries struct {
	mu   sync.Mutex
	jobs []jobs.Job
}

func (f *fakeRetries) Publish(ctx context.Context, job jobs.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

func encode(t *testing.T, jobType string, payload any, attempt int) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(jobs.Job{
		ID:          uuid.New(),
		Type:        jobType,
		Payload:     raw,
		Attempt:     attempt,
		MaxAttempts: 3,
	})
	require.NoError(t, err)
	return data
}

func TestWorker_Dispatch(t *testing.T) {
	invoices := &fakeInvoices{}
	runner := &fakeDunning{}
	w := NewWorker(invoices, runner, &fakeRetries{}, Config{}, zerolog.Nop(), nil)
	ctx := context.Background()

	id := uuid.New()
	w.Dispatch(ctx, encode(t, jobs.JobTypeRenderInvoice, jobs.RenderInvoicePayload{InvoiceID: id}, 1))
	w.Dispatch(ctx, encode(t, jobs.JobTypeDunningRun, jobs.DunningRunPayload{RequestedBy: "test"}, 1))
	w.Dispatch(ctx, []byte("garbage"))
	require.NoError(t, w.wait())

	assert.Equal(t, []uuid.UUID{id}, invoices.calls)
	assert.Equal(t, int32(1), runner.runs.Load())
}

func TestWorker_RetriesFailedJobs(t *testing.T) {
	tests := []struct {
		name        string
		attempt     int
		wantRetries int
	}{
		{name: "first attempt", attempt: 1, wantRetries: 1},
		{name: "last attempt", attempt: 3, wantRetries: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retries := &fakeRetries{}
			w := NewWorker(&fakeInvoices{err: errors.New("storage unavailable")}, nil, retries, Config{}, zerolog.Nop(), nil)

			w.Dispatch(context.Background(), encode(t, jobs.JobTypeRenderInvoice, jobs.RenderInvoicePayload{InvoiceID: uuid.New()}, tt.attempt))
			require.NoError(t, w.wait())

			require.Len(t, retries.jobs, tt.wantRetries)
			if tt.wantRetries > 0 {
				assert.Equal(t, tt.attempt+1, retries.jobs[0].Attempt)
			}
		})
	}
}

func TestWorker_DunningNotConfigured(t *testing.T) {
	retries := &fakeRetries{}
	w := NewWorker(&fakeInvoices{}, nil, retries, Config{}, zerolog.Nop(), nil)

	w.Dispatch(context.Background(), encode(t, jobs.JobTypeDunningRun, jobs.DunningRunPayload{}, 3))
	require.NoError(t, w.wait())
	assert.Empty(t, retries.jobs)
}

func TestWorker_BoundsConcurrency(t *testing.T) {
	invoices := &fakeInvoices{block: make(chan struct{})}
	w := NewWorker(invoices, nil, nil, Config{MaxConcurrency: 2}, zerolog.Nop(), nil)
	ctx := context.Background()

	var msgs [][]byte
	for i := 0; i < 4; i++ {
		msgs = append(msgs, encode(t, jobs.JobTypeRenderInvoice, jobs.RenderInvoicePayload{InvoiceID: uuid.New()}, 1))
	}

	dispatched := make(chan struct{})
	go func() {
		for _, m := range msgs {
			w.Dispatch(ctx, m)
		}
		close(dispatched)
	}()

	require.Eventually(t, func() bool { return invoices.active.Load() == 2 }, time.Second, 5*time.Millisecond)
	select {
	case <-dispatched:
		t.Fatal("dispatch should block while the worker is saturated")
	default:
	}

	close(invoices.block)
	<-dispatched
	require.NoError(t, w.wait())

	assert.Len(t, invoices.calls, 4)
	assert.Equal(t, int32(2), invoices.maxSeen.Load())
}

func TestWorker_DropsJobsAfterShutdown(t *testing.T) {
	invoices := &fakeInvoices{block: make(chan struct{})}
	w := NewWorker(invoices, nil, nil, Config{MaxConcurrency: 1}, zerolog.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	w.Dispatch(ctx, encode(t, jobs.JobTypeRenderInvoice, jobs.RenderInvoicePayload{InvoiceID: uuid.New()}, 1))
	require.Eventually(t, func() bool { return invoices.active.Load() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	w.Dispatch(ctx, encode(t, jobs.JobTypeRenderInvoice, jobs.RenderInvoicePayload{InvoiceID: uuid.New()}, 1))

	close(invoices.block)
	require.NoError(t, w.wait())
	assert.Len(t, invoices.calls, 1)
}
