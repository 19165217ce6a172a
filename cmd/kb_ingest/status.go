package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fieldwise/agrokb/internal/db"
	"github.com/fieldwise/agrokb/internal/observability"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the knowledge base currently holds",
	Long:  "Read-only view of the knowledge base: row totals plus every source with its status and chunk count.",
	RunE:  runStatus,
}

var statusDatabaseURL string

func init() {
	statusCmd.Flags().StringVar(&statusDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	databaseURL := statusDatabaseURL
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required")
	}

	database, err := db.Open(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	totals, err := database.Totals(ctx)
	if err != nil {
		return fmt.Errorf("failed to read totals: %w", err)
	}
	srcs, err := database.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}

	printer := observability.NewPrinter(os.Stdout)
	printer.PrintTotals(totals)
	printer.PrintSources(srcs)

	return nil
}
