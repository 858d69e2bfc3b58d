package admin

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

func ResetDB(log *slog.Logger, cfg PgMigrateConfig, dryRun, skipConfirm bool) error {
	db, err := openPgDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// Query for all tables in the public schema, including goose's version
	// table so a subsequent migrate starts from scratch.
	tableQuery := `
		SELECT tablename
		FROM pg_tables
		WHERE schemaname = 'public'
		ORDER BY tablename
	`

	tableRows, err := db.Query(tableQuery)
	if err != nil {
		return fmt.Errorf("failed to query tables: %w", err)
	}
	defer tableRows.Close()

	var tables []string
	for tableRows.Next() {
		var tableName string
		if err := tableRows.Scan(&tableName); err != nil {
			return fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, tableName)
	}
	if err := tableRows.Err(); err != nil {
		return fmt.Errorf("failed to iterate tables: %w", err)
	}

	if len(tables) == 0 {
		fmt.Println("No tables found")
		return nil
	}

	fmt.Printf("⚠️  WARNING: This will DROP %d table(s) from database '%s':\n\n", len(tables), cfg.Database)
	for _, table := range tables {
		fmt.Printf("  - %s\n", table)
	}

	if dryRun {
		fmt.Println("\n[DRY RUN] Would drop the above tables")
		return nil
	}

	// Prompt for confirmation unless --yes flag is set
	if !skipConfirm {
		fmt.Printf("\n⚠️  This is a DESTRUCTIVE operation that cannot be undone!\n")
		fmt.Printf("Type 'yes' to confirm: ")

		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}

		response = strings.TrimSpace(strings.ToLower(response))
		if response != "yes" {
			fmt.Printf("\nConfirmation failed. Operation cancelled.\n")
			return nil
		}
		fmt.Println()
	}

	fmt.Println("Dropping tables...")
	for _, table := range tables {
		dropQuery := fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)
		if _, err := db.Exec(dropQuery); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
		fmt.Printf("  ✓ Dropped %s\n", table)
	}

	fmt.Printf("\nSuccessfully dropped %d table(s)\n", len(tables))
	return nil
}
