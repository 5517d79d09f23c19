package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dukerupert/courtbill/internal/dunning"
)

// Job type constants for dunning jobs
const (
	JobTypeDunningRun = "dunning:run"
)

// DunningRunPayload represents the payload for an on-demand dunning run
type DunningRunPayload struct {
	RequestedBy string `json:"requested_by"`
}

// EnqueueDunningRun asks a worker to run dunning now.
func (q *Queue) EnqueueDunningRun(ctx context.Context, requestedBy string) error {
	return q.Enqueue(ctx, JobTypeDunningRun, DunningRunPayload{RequestedBy: requestedBy})
}

// DunningRunner runs one dunning pass.
type DunningRunner interface {
	RunOnce(ctx context.Context) (*dunning.RunSummary, error)
}

// ProcessDunningJob runs dunning. A run skipped because another instance
// holds the lock counts as done.
func ProcessDunningJob(ctx context.Context, job Job, runner DunningRunner) (*dunning.RunSummary, error) {
	var payload DunningRunPayload
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dunning payload: %w", err)
		}
	}
	return runner.RunOnce(ctx)
}
