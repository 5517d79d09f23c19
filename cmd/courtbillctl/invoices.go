package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dukerupert/courtbill/internal/bootstrap"
	"github.com/dukerupert/courtbill/internal/domain"
)

func newInvoicesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "invoices",
		Aliases: []string{"invoice", "inv"},
		Short:   "Inspect and transition invoices",
	}
	cmd.AddCommand(
		newInvoicesListCmd(c),
		newInvoicesStatsCmd(c),
		newInvoicesSendCmd(c),
		newInvoicesMarkPaidCmd(c),
		newInvoicesCancelCmd(c),
		newInvoiceActionCmd(c, "remind <id>", "Send the next payment reminder", func(ctx context.Context, app *bootstrap.App, id uuid.UUID) (*domain.Invoice, error) {
			return app.Invoices.SendReminder(ctx, id)
		}),
		newInvoiceActionCmd(c, "regenerate <id>", "Re-render the invoice document", func(ctx context.Context, app *bootstrap.App, id uuid.UUID) (*domain.Invoice, error) {
			return app.Invoices.RegenerateDocument(ctx, id)
		}),
	)
	return cmd
}

func newInvoicesListCmd(c *cli) *cobra.Command {
	var (
		tenant string
		status string
		search string
		limit  int32
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invoices of a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := uuid.Parse(tenant)
			if err != nil {
				return fmt.Errorf("invalid --tenant %q", tenant)
			}
			return c.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				page, err := app.Invoices.List(ctx, domain.InvoiceFilter{
					TenantID: tenantID,
					Status:   domain.Status(status),
					Search:   search,
					Limit:    limit,
				})
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NUMBER\tSTATUS\tBILLED TO\tGROSS\tDUE\tREMINDERS")
				for _, inv := range page.Invoices {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s %s\t%s\t%d\n",
						inv.InvoiceNumber, inv.Status, inv.Billing.Name,
						inv.GrossAmount.StringFixed(2), inv.Currency,
						inv.DueDate.Format(time.DateOnly), inv.ReminderCount)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d invoices\n", len(page.Invoices), page.Total)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (draft, sent, paid, overdue, cancelled)")
	cmd.Flags().StringVar(&search, "search", "", "match invoice number or billing name")
	cmd.Flags().Int32Var(&limit, "limit", 50, "maximum number of invoices")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newInvoicesStatsCmd(c *cli) *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show invoice totals per status for a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := uuid.Parse(tenant)
			if err != nil {
				return fmt.Errorf("invalid --tenant %q", tenant)
			}
			return c.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				stats, err := app.Invoices.Statistics(ctx, tenantID)
				if err != nil {
					return err
				}
				printStatistics(cmd.OutOrStdout(), stats)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func printStatistics(w io.Writer, stats *domain.InvoiceStatistics) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tCOUNT\tGROSS")
	for _, s := range []domain.Status{domain.StatusDraft, domain.StatusSent, domain.StatusOverdue, domain.StatusPaid, domain.StatusCancelled} {
		st := stats.ByStatus[s]
		fmt.Fprintf(tw, "%s\t%d\t%s\n", s, st.Count, st.Gross.StringFixed(2))
	}
	fmt.Fprintf(tw, "outstanding\t\t%s\n", stats.Outstanding.StringFixed(2))
	_ = tw.Flush()
}

func newInvoicesSendCmd(c *cli) *cobra.Command {
	var noNotify bool
	cmd := newInvoiceActionCmd(c, "send <id>", "Send a draft invoice", nil)
	cmd.RunE = invoiceAction(c, func(ctx context.Context, app *bootstrap.App, id uuid.UUID) (*domain.Invoice, error) {
		return app.Invoices.Send(ctx, id, domain.SendOptions{Notify: !noNotify})
	})
	cmd.Flags().BoolVar(&noNotify, "no-notify", false, "do not email the invoice")
	return cmd
}

func newInvoicesMarkPaidCmd(c *cli) *cobra.Command {
	var (
		reference string
		notes     string
		paidAt    string
	)
	cmd := newInvoiceActionCmd(c, "mark-paid <id>", "Record a payment received outside the gateway", nil)
	cmd.RunE = invoiceAction(c, func(ctx context.Context, app *bootstrap.App, id uuid.UUID) (*domain.Invoice, error) {
		params := domain.MarkPaidParams{Reference: reference, Notes: notes}
		if paidAt != "" {
			t, err := time.Parse(time.DateOnly, paidAt)
			if err != nil {
				return nil, fmt.Errorf("invalid --paid-at, use YYYY-MM-DD: %w", err)
			}
			params.PaidAt = &t
		}
		inv, changed, err := app.Invoices.MarkPaid(ctx, id, params)
		if err == nil && !changed {
			fmt.Fprintf(cmd.ErrOrStderr(), "invoice %s was already paid\n", inv.InvoiceNumber)
		}
		return inv, err
	})
	cmd.Flags().StringVar(&reference, "reference", "", "payment reference, e.g. bank transfer id")
	cmd.Flags().StringVar(&notes, "notes", "", "internal payment notes")
	cmd.Flags().StringVar(&paidAt, "paid-at", "", "payment date (YYYY-MM-DD, default today)")
	return cmd
}

func newInvoicesCancelCmd(c *cli) *cobra.Command {
	var reason string
	cmd := newInvoiceActionCmd(c, "cancel <id>", "Cancel an invoice", nil)
	cmd.RunE = invoiceAction(c, func(ctx context.Context, app *bootstrap.App, id uuid.UUID) (*domain.Invoice, error) {
		return app.Invoices.Cancel(ctx, id, domain.CancelParams{Reason: reason})
	})
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason shown to the customer")
	return cmd
}

type invoiceFunc func(ctx context.Context, app *bootstrap.App, id uuid.UUID) (*domain.Invoice, error)

func newInvoiceActionCmd(c *cli, use, short string, fn invoiceFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
	}
	if fn != nil {
		cmd.RunE = invoiceAction(c, fn)
	}
	return cmd
}

func invoiceAction(c *cli, fn invoiceFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := parseInvoiceID(args[0])
		if err != nil {
			return err
		}
		return c.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			inv, err := fn(ctx, app, id)
			if err != nil {
				return fmt.Errorf("%s: %s", domain.ErrorCode(err), domain.ErrorMessage(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", inv.InvoiceNumber, inv.Status)
			return nil
		})
	}
}
