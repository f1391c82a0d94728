package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/md-rashed-zaman/bookingadmin/libs/grpcx"
)

func newHealthCommand() *cobra.Command {
	var addr, service string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query a service's gRPC health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			status, err := grpcx.CheckHealth(ctx, addr, service)
			if err != nil {
				return err
			}
			cmd.Println(status)
			if status != "SERVING" {
				return fmt.Errorf("%s is %s", addr, status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "grpc", "localhost:9090", "gRPC address")
	cmd.Flags().StringVar(&service, "service", "", "service name (empty for the whole server)")
	return cmd
}
