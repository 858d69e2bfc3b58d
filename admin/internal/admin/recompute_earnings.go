package admin

import (
	"fmt"
	"log/slog"
)

// RecomputeEarnings rebuilds works.royalty_earned from the distribution
// credits ledger. Earned balances are derived state; if a deploy was rolled
// back mid-distribution the ledger is the source of truth.
func RecomputeEarnings(log *slog.Logger, cfg PgMigrateConfig, dryRun bool) error {
	db, err := openPgDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	driftQuery := `
		SELECT w.work_id, w.royalty_earned, COALESCE(c.total, 0) AS ledger_total
		FROM works w
		LEFT JOIN (
			SELECT work_id, SUM(amount) AS total
			FROM distribution_credits
			GROUP BY work_id
		) c ON c.work_id = w.work_id
		WHERE w.royalty_earned != COALESCE(c.total, 0)
		ORDER BY w.work_id
	`

	rows, err := db.Query(driftQuery)
	if err != nil {
		return fmt.Errorf("failed to query earnings drift: %w", err)
	}
	defer rows.Close()

	type drift struct {
		workID string
		earned int64
		ledger int64
	}
	var drifts []drift
	for rows.Next() {
		var d drift
		if err := rows.Scan(&d.workID, &d.earned, &d.ledger); err != nil {
			return fmt.Errorf("failed to scan drift row: %w", err)
		}
		drifts = append(drifts, d)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate drift rows: %w", err)
	}

	if len(drifts) == 0 {
		fmt.Println("All earned balances match the credits ledger")
		return nil
	}

	fmt.Printf("Found %d work(s) with drifted earned balances:\n\n", len(drifts))
	for _, d := range drifts {
		fmt.Printf("  - %s: earned=%d ledger=%d\n", d.workID, d.earned, d.ledger)
	}

	if dryRun {
		fmt.Println("\n[DRY RUN] Would rewrite the above earned balances from the ledger")
		return nil
	}

	fmt.Println("\nRewriting earned balances...")
	for _, d := range drifts {
		// Never drop earned below what has already been claimed.
		res, err := db.Exec(
			`UPDATE works SET royalty_earned = $2, updated_at = NOW()
			 WHERE work_id = $1 AND royalty_claimed <= $2`,
			d.workID, d.ledger,
		)
		if err != nil {
			return fmt.Errorf("failed to update work %s: %w", d.workID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected for %s: %w", d.workID, err)
		}
		if n == 0 {
			log.Warn("admin: skipped work with claims above ledger total", "workID", d.workID, "ledger", d.ledger)
			continue
		}
		fmt.Printf("  ✓ %s: %d -> %d\n", d.workID, d.earned, d.ledger)
	}

	fmt.Printf("\nRecompute complete\n")
	return nil
}
