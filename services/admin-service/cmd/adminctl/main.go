// Command adminctl runs back-office operations from a shell: schema
// migration, CSV import, statistics export, worker control, webhook
// simulation and health probes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/md-rashed-zaman/bookingadmin/libs/config"
	"github.com/md-rashed-zaman/bookingadmin/libs/db"
	"github.com/md-rashed-zaman/bookingadmin/libs/runtime"
)

func main() {
	ctx, stop := runtime.SignalContext()
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "adminctl",
		Short:         "Booking back-office operations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("database-url", config.String("DATABASE_URL", ""), "postgres connection string")
	root.AddCommand(
		newMigrateCommand(),
		newImportCommand(),
		newExportCommand(),
		newWorkersCommand(),
		newWebhookCommand(),
		newHealthCommand(),
	)
	return root
}

// logger writes to stderr so exports on stdout stay clean.
func logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: runtime.ParseLevel(config.String("LOG_LEVEL", "info")),
	}))
}

// openDB connects using --database-url (DATABASE_URL by default).
func openDB(cmd *cobra.Command) (*db.Pool, error) {
	url, _ := cmd.Flags().GetString("database-url")
	if url == "" {
		return nil, fmt.Errorf("--database-url or DATABASE_URL is required")
	}
	return db.Open(cmd.Context(), url)
}

func withDB(cmd *cobra.Command, fn func(ctx context.Context, pool *db.Pool) error) error {
	pool, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(cmd.Context(), pool)
}
