package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/md-rashed-zaman/bookingadmin/libs/db"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/csvimport"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/storage"
)

func newImportCommand() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import organisations, working points, specialists, programs and services",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			return withDB(cmd, func(ctx context.Context, pool *db.Pool) error {
				res, err := csvimport.New(storage.New(pool), logger()).Import(ctx, f, dryRun)
				if err != nil {
					return err
				}
				printImport(cmd, res)
				if len(res.Errors) > 0 {
					return fmt.Errorf("%d row errors, nothing imported", len(res.Errors))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and roll back")
	return cmd
}

func printImport(cmd *cobra.Command, res csvimport.Result) {
	for _, e := range res.Errors {
		cmd.Printf("line %d [%s]: %s\n", e.Line, e.Section, e.Message)
	}
	sections := make([]string, 0, len(res.Created))
	for s := range res.Created {
		sections = append(sections, s)
	}
	sort.Strings(sections)
	for _, s := range sections {
		cmd.Printf("%-16s %d\n", s, res.Created[s])
	}
	switch {
	case len(res.Errors) > 0:
	case res.DryRun:
		cmd.Println("dry run passed, batch", res.BatchID)
	case res.Committed:
		cmd.Println("imported, batch", res.BatchID)
	}
}
