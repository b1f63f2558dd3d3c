package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"lending/internal/config"
	"lending/internal/database"
	"lending/internal/repositories"
	"lending/internal/services"
)

var (
	// Global flags; they override the environment when set.
	dbURL    string
	dbDriver string
)

var rootCmd = &cobra.Command{
	Use:   "lending",
	Short: "Library lending engine: catalogue, copies, loans, fines and reservations",
	Long: `lending serves the library lending API and runs its maintenance tasks.

Configuration comes from the environment (DATABASE_URL, DATABASE_DRIVER, SERVER_ADDR,
JWT_SECRET, TOKEN_TTL, RECONCILE_INTERVAL, TX_MAX_ATTEMPTS, DB_MAX_OPEN_CONNS, ...).`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "database connection URL (default $DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&dbDriver, "driver", "", "database driver: postgres or sqlite (default $DATABASE_DRIVER)")

	rootCmd.AddCommand(serveCmd, migrateCmd, reconcileCmd, accountsCmd)
}

// app is the wiring shared by every command that talks to the database.
type app struct {
	cfg *config.Config
	db  *gorm.DB
	svc services.LibraryService
}

func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if dbDriver != "" {
		cfg.DatabaseDriver = dbDriver
	}

	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL, database.FromConfig(cfg))
	if err != nil {
		return nil, err
	}

	repos := repositories.New(db)
	svc := services.NewLibraryService(db, repos,
		services.WithRetry(cfg.TxMaxAttempts, cfg.TxBaseDelay),
	)
	return &app{cfg: cfg, db: db, svc: svc}, nil
}

func (a *app) Close() {
	if err := database.Close(a.db); err != nil {
		fmt.Fprintf(os.Stderr, "close database: %v\n", err)
	}
}
