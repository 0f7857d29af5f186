// Command backfill-orders is a one-shot maintenance tool that seeds a status
// history on orders that were persisted before status history existed. It is
// idempotent: orders that already have a history are left untouched.
package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/surtifrio/flowbot/internal/models"
	"github.com/surtifrio/flowbot/internal/store"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for flowbot state data
	DefaultStateDir = "/var/lib/flowbot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "flowbot.db"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	defaultDSN := os.Getenv("DATABASE_URL")
	if defaultDSN == "" {
		stateDir := os.Getenv("FLOWBOT_STATE_DIR")
		if stateDir == "" {
			stateDir = DefaultStateDir
		}
		defaultDSN = filepath.Join(stateDir, DefaultDBFileName)
	}

	dsn := flag.String("db-dsn", defaultDSN, "database DSN for the flowbot store (overrides $DATABASE_URL)")
	dryRun := flag.Bool("dry-run", false, "report what would change without writing")
	flag.Parse()

	st, err := openStore(*dsn)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	updated, err := backfill(st, *dryRun)
	if err != nil {
		slog.Error("Backfill failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Backfill complete", "orders_updated", updated, "dry_run", *dryRun)
}

// openStore selects the persistent backend from the DSN shape.
func openStore(dsn string) (store.Store, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// backfill seeds a single-entry status history on every order that has none,
// using the order's current status and creation time. Returns the number of
// orders updated.
func backfill(st store.Store, dryRun bool) (int, error) {
	orders, err := st.ListOrders()
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, o := range orders {
		if len(o.StatusHistory) > 0 {
			continue
		}
		status := o.Status
		if !models.IsValidOrderStatus(status) {
			slog.Warn("Order has unknown status, seeding as pending", "order_id", o.ID, "status", status)
			status = models.OrderStatusPending
		}
		o.StatusHistory = []models.StatusChange{{Status: status, At: o.CreatedAt}}

		if dryRun {
			slog.Info("Would backfill order", "order_id", o.ID, "status", status)
			updated++
			continue
		}
		if err := st.UpdateOrder(o); err != nil {
			return updated, err
		}
		slog.Info("Backfilled order", "order_id", o.ID, "status", status)
		updated++
	}
	return updated, nil
}
