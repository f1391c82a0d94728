package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/md-rashed-zaman/bookingadmin/libs/db"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/export"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/storage"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/validate"
)

type statsFlags struct {
	from, to, group, format, out string
	organisationID               int64
}

// filter turns the flags into a query. to is inclusive; the default range
// is the last 30 days.
func (f statsFlags) filter(now time.Time) (model.StatsFilter, export.Format, error) {
	format, err := export.ParseFormat(f.format)
	if err != nil {
		return model.StatsFilter{}, "", err
	}
	sf := model.StatsFilter{OrganisationID: f.organisationID, Group: model.StatsGroup(f.group)}
	if !sf.Group.Valid() {
		return sf, "", fmt.Errorf("unknown group %q", f.group)
	}
	if f.to != "" {
		if sf.To, err = time.Parse(validate.DateLayout, f.to); err != nil {
			return sf, "", fmt.Errorf("--to: %w", err)
		}
	} else {
		sf.To = now.UTC().Truncate(24 * time.Hour)
	}
	sf.To = sf.To.AddDate(0, 0, 1)
	if f.from != "" {
		if sf.From, err = time.Parse(validate.DateLayout, f.from); err != nil {
			return sf, "", fmt.Errorf("--from: %w", err)
		}
	} else {
		sf.From = sf.To.AddDate(0, 0, -30)
	}
	if !sf.To.After(sf.From) {
		return sf, "", errors.New("--to must not be before --from")
	}
	return sf, format, nil
}

func newExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export reports",
	}
	var f statsFlags
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Export booking statistics as csv, html or xlsx",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sf, format, err := f.filter(time.Now())
			if err != nil {
				return err
			}
			return withDB(cmd, func(ctx context.Context, pool *db.Pool) error {
				rows, err := storage.New(pool).Statistics(ctx, sf)
				if err != nil {
					return err
				}
				var w io.Writer = cmd.OutOrStdout()
				if f.out != "" {
					file, err := os.Create(f.out)
					if err != nil {
						return err
					}
					defer file.Close()
					w = file
				}
				cw := &countingWriter{w: w}
				if err := export.Write(cw, format, sf.Group, rows); err != nil {
					return err
				}
				if f.out != "" {
					cmd.PrintErrf("wrote %s (%s, %d rows)\n", f.out, humanize.Bytes(uint64(cw.n)), len(rows))
				}
				return nil
			})
		},
	}
	stats.Flags().StringVar(&f.from, "from", "", "first day, YYYY-MM-DD")
	stats.Flags().StringVar(&f.to, "to", "", "last day (inclusive), YYYY-MM-DD")
	stats.Flags().StringVar(&f.group, "group", string(model.GroupSpecialist), "specialist, service, working_point or day")
	stats.Flags().StringVar(&f.format, "format", "csv", "csv, html or xlsx")
	stats.Flags().StringVarP(&f.out, "output", "o", "", "file to write (stdout when empty)")
	stats.Flags().Int64Var(&f.organisationID, "organisation-id", 0, "limit to one organisation")
	cmd.AddCommand(stats)
	return cmd
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
