package main

import (
	"github.com/spf13/cobra"

	"github.com/dukerupert/courtbill/internal"
	"github.com/dukerupert/courtbill/internal/bootstrap"
)

func newMigrateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect database migrations",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := bootstrap.Migrate(c.cfg.DatabaseUrl); err != nil {
					return err
				}
				c.logger.Info().Msg("Database migrations completed successfully")
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the state of every migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				db, err := bootstrap.OpenSQL(c.cfg.DatabaseUrl)
				if err != nil {
					return err
				}
				defer db.Close()
				return internal.MigrationStatus(db)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				db, err := bootstrap.OpenSQL(c.cfg.DatabaseUrl)
				if err != nil {
					return err
				}
				defer db.Close()
				return internal.RollbackMigration(db)
			},
		},
	)
	return cmd
}
