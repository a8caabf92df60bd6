package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qenex/regd/internal/logger"
	"github.com/qenex/regd/pkg/registry/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Apply pending schema migrations to the configured registry
database (SQLite or PostgreSQL). Required after upgrading regd when
schema changes have been made.

Examples:
  # Run migrations with default config
  regd migrate

  # Run migrations with custom config
  regd migrate --config /etc/regd/regd.yaml`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return err
	}

	logger.Info("Running database migrations", "type", cfg.Database.Type)

	// Opening the store triggers auto-migration.
	st, err := store.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	defer func() { _ = st.Close() }()

	// Verify the schema is usable.
	if _, err := st.ListRegistrars(context.Background()); err != nil {
		return fmt.Errorf("migration verification failed: %w", err)
	}

	fmt.Printf("Migrations completed successfully (database type: %s)\n", cfg.Database.Type)
	return nil
}
