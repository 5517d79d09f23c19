package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/courtbill/internal/bootstrap"
	"github.com/dukerupert/courtbill/internal/dunning"
)

func newDunningCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dunning",
		Short: "Run the dunning pass",
	}

	var async bool
	run := &cobra.Command{
		Use:   "run",
		Short: "Run one dunning pass now",
		Long: `Marks overdue invoices, sends due reminders and suspends entities past the
grace period. With REDIS_URL set the run shares the server's run lock and is
skipped while another run is in progress. Without it the lock is local to
this process; overlapping runs are still safe because every reminder and
transition is re-checked on the locked invoice row.`,
		Example: `  # Run in this process and print the summary
  courtbillctl dunning run

  # Hand the run to a worker
  courtbillctl dunning run --async`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				if async {
					if app.Queue == nil {
						return errors.New("--async requires NATS_URL")
					}
					if err := app.Queue.EnqueueDunningRun(ctx, "courtbillctl"); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "dunning run enqueued")
					return nil
				}

				summary, err := app.Scheduler.RunOnce(ctx)
				if summary != nil {
					printSummary(cmd.OutOrStdout(), summary)
				}
				return err
			})
		},
	}
	run.Flags().BoolVar(&async, "async", false, "enqueue the run for a worker instead of running it here")

	cmd.AddCommand(run)
	return cmd
}

func printSummary(w io.Writer, s *dunning.RunSummary) {
	if s.Skipped {
		fmt.Fprintln(w, "skipped: another dunning run holds the lock")
		return
	}
	fmt.Fprintf(w, "marked overdue:  %d\n", s.MarkedOverdue)
	fmt.Fprintf(w, "reminders sent:  %d\n", s.RemindersSent)
	fmt.Fprintf(w, "suspended:       %d\n", s.Suspended)
	fmt.Fprintf(w, "elapsed:         %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	if len(s.Failures) == 0 {
		return
	}
	fmt.Fprintf(w, "failures:        %d\n", len(s.Failures))
	for _, f := range s.Failures {
		fmt.Fprintf(w, "  %-10s %s  %v\n", f.Phase, f.InvoiceNumber, f.Err)
	}
}
