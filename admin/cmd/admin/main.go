package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/atelierlabs/atelier/admin/internal/admin"
	"github.com/atelierlabs/atelier/utils/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	// Postgres configuration
	pgHostFlag := flag.String("pg-host", "localhost", "Postgres host (or set POSTGRES_HOST env var)")
	pgPortFlag := flag.String("pg-port", "5432", "Postgres port (or set POSTGRES_PORT env var)")
	pgDatabaseFlag := flag.String("pg-database", "atelier", "Postgres database name (or set POSTGRES_DB env var)")
	pgUsernameFlag := flag.String("pg-username", "postgres", "Postgres username (or set POSTGRES_USER env var)")
	pgPasswordFlag := flag.String("pg-password", "", "Postgres password (or set POSTGRES_PASSWORD env var)")
	pgSSLModeFlag := flag.String("pg-sslmode", "disable", "Postgres SSL mode (or set POSTGRES_SSLMODE env var)")

	// Commands
	pgMigrateFlag := flag.Bool("pg-migrate", false, "Run database migrations using goose")
	pgMigrateDownFlag := flag.Bool("pg-migrate-down", false, "Roll back the last database migration")
	pgMigrateStatusFlag := flag.Bool("pg-migrate-status", false, "Show database migration status")
	resetDBFlag := flag.Bool("reset-db", false, "Drop all database tables")
	recomputeEarningsFlag := flag.Bool("recompute-earnings", false, "Rebuild earned royalty balances from the distribution credits ledger")
	dryRunFlag := flag.Bool("dry-run", false, "Dry run mode - show what would be done without actually executing")
	yesFlag := flag.Bool("yes", false, "Skip confirmation prompt (use with caution)")

	flag.Parse()

	log := logger.New(*verboseFlag)

	// Override Postgres flags with environment variables if set
	if envPgHost := os.Getenv("POSTGRES_HOST"); envPgHost != "" {
		*pgHostFlag = envPgHost
	}
	if envPgPort := os.Getenv("POSTGRES_PORT"); envPgPort != "" {
		*pgPortFlag = envPgPort
	}
	if envPgDatabase := os.Getenv("POSTGRES_DB"); envPgDatabase != "" {
		*pgDatabaseFlag = envPgDatabase
	}
	if envPgUsername := os.Getenv("POSTGRES_USER"); envPgUsername != "" {
		*pgUsernameFlag = envPgUsername
	}
	if envPgPassword := os.Getenv("POSTGRES_PASSWORD"); envPgPassword != "" {
		*pgPasswordFlag = envPgPassword
	}
	if envPgSSLMode := os.Getenv("POSTGRES_SSLMODE"); envPgSSLMode != "" {
		*pgSSLModeFlag = envPgSSLMode
	}

	cfg := admin.PgMigrateConfig{
		Host:     *pgHostFlag,
		Port:     *pgPortFlag,
		Database: *pgDatabaseFlag,
		Username: *pgUsernameFlag,
		Password: *pgPasswordFlag,
		SSLMode:  *pgSSLModeFlag,
	}

	// Execute commands
	if *pgMigrateFlag {
		return admin.PgMigrateUp(log, cfg)
	}

	if *pgMigrateDownFlag {
		return admin.PgMigrateDown(log, cfg)
	}

	if *pgMigrateStatusFlag {
		return admin.PgMigrateStatus(log, cfg)
	}

	if *resetDBFlag {
		return admin.ResetDB(log, cfg, *dryRunFlag, *yesFlag)
	}

	if *recomputeEarningsFlag {
		return admin.RecomputeEarnings(log, cfg, *dryRunFlag)
	}

	flag.Usage()
	return nil
}
