package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dukerupert/courtbill/internal"
	"github.com/dukerupert/courtbill/internal/bootstrap"
	"github.com/dukerupert/courtbill/internal/domain"
)

var version = "dev"

type cli struct {
	cfg    *internal.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "courtbillctl",
		Short: "Operator CLI for courtbill invoicing",
		Long: `courtbillctl runs maintenance and operator tasks against the courtbill
database. It reads the same environment variables (or .env file) as the server.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := internal.NewConfig()
			if err != nil {
				return fmt.Errorf("config initialization failed: %w", err)
			}
			c.cfg = cfg
			c.logger = internal.NewLogger(os.Stderr, cfg.Env, cfg.LogLevel)
			return nil
		},
	}

	root.AddCommand(
		newMigrateCmd(c),
		newDunningCmd(c),
		newInvoicesCmd(c),
	)
	return root
}

// withApp wires the invoicing components for one command. Actions run as the
// "courtbillctl" system actor.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.App) error) error {
	ctx := domain.NewContextWithActor(cmd.Context(), domain.SystemActor("courtbillctl"))

	app, err := bootstrap.New(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(ctx, app)
}

func parseInvoiceID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid invoice id %q", arg)
	}
	return id, nil
}
