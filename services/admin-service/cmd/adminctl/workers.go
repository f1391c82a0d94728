package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/md-rashed-zaman/bookingadmin/libs/config"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/workers"
)

func newWorkersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "Inspect and control background workers",
	}
	cmd.PersistentFlags().String("file", config.String("WORKERS_FILE", ""), "workers YAML file")

	controller := func(cmd *cobra.Command) (*workers.Controller, error) {
		path, _ := cmd.Flags().GetString("file")
		if path == "" {
			return nil, fmt.Errorf("--file or WORKERS_FILE is required")
		}
		defs, err := workers.LoadFile(path)
		if err != nil {
			return nil, err
		}
		return workers.NewController(defs, workers.ExecRunner{}, logger()), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show unit state and matching processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := controller(cmd)
			if err != nil {
				return err
			}
			st, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WORKER\tUNIT\tSTATE\tPID\tCPU\tMEM\tRSS\tSTART")
			for _, s := range st {
				if len(s.Processes) == 0 {
					fmt.Fprintf(tw, "%s\t%s\t%s\t-\t-\t-\t-\t-\n", s.Name, s.Unit, s.Active)
				}
				for _, p := range s.Processes {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.1f\t%.1f\t%s\t%s\n", s.Name, s.Unit, s.Active, p.PID, p.CPU, p.Mem, p.RSSHuman, p.Start)
				}
			}
			return tw.Flush()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:       "action <worker> <start|stop|restart|kill>",
		Short:     "Apply an action to a worker",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{workers.ActionStart, workers.ActionStop, workers.ActionRestart, workers.ActionKill},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := controller(cmd)
			if err != nil {
				return err
			}
			if err := c.Do(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			cmd.Printf("%s applied to %s\n", args[1], args[0])
			return nil
		},
	})
	return cmd
}
