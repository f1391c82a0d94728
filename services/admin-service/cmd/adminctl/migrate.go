package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/md-rashed-zaman/bookingadmin/libs/db"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/schema"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd, func(ctx context.Context, pool *db.Pool) error {
				applied, err := schema.Migrate(ctx, pool, logger())
				if err != nil {
					return fmt.Errorf("migration: %w", err)
				}
				if len(applied) == 0 {
					cmd.Println("schema up to date")
					return nil
				}
				for _, name := range applied {
					cmd.Println("applied", name)
				}
				return nil
			})
		},
	}
}
