// Package pgstore implements the royalty store contracts on PostgreSQL.
// Earned and claimed totals are only ever moved with single-statement
// read-modify-write updates, so concurrent distributions and claims over
// shared rows cannot lose increments or double-spend a balance.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/atelierlabs/atelier/royalty"
)

type Config struct {
	Logger *slog.Logger
	Pool   *pgxpool.Pool
	Clock  clockwork.Clock
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Pool == nil {
		return errors.New("postgres pool is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

type Store struct {
	log  *slog.Logger
	pool *pgxpool.Pool
	cfg  Config
}

func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		log:  cfg.Logger,
		pool: cfg.Pool,
		cfg:  cfg,
	}, nil
}

const workColumns = `work_id, creator, COALESCE(parent_id, ''), title, description,
	file_type, file_size, tags, category, fee, license_rule, license_price,
	royalty_ratio, royalty_earned, royalty_claimed, revoked,
	COALESCE(blob_id, ''), COALESCE(preview_uri, ''), transaction_digest,
	created_at, updated_at`

func scanWork(row pgx.Row) (*royalty.Work, error) {
	var w royalty.Work
	err := row.Scan(&w.ID, &w.Creator, &w.ParentID, &w.Title, &w.Description,
		&w.FileType, &w.FileSize, &w.Tags, &w.Category, &w.Fee, &w.LicenseRule, &w.LicensePrice,
		&w.RoyaltyRatio, &w.RoyaltyEarned, &w.RoyaltyClaimed, &w.Revoked,
		&w.BlobID, &w.PreviewURI, &w.TransactionDigest,
		&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWork returns the work row or royalty.ErrNotFound.
func (s *Store) GetWork(ctx context.Context, workID string) (*royalty.Work, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+workColumns+` FROM works WHERE work_id = $1`, workID)
	w, err := scanWork(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", royalty.ErrNotFound, workID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get work %s: %w", workID, err)
	}
	return w, nil
}

// UpsertWork writes the indexer-owned columns of a work row. It never
// touches royalty_earned or royalty_claimed; those belong to the engine.
func (s *Store) UpsertWork(ctx context.Context, w *royalty.Work) error {
	now := s.cfg.Clock.Now().UTC()
	createdAt := w.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	var parentID *string
	if w.ParentID != "" {
		parentID = &w.ParentID
	}
	tags := w.Tags
	if tags == nil {
		tags = []string{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO works (work_id, creator, parent_id, title, description,
			file_type, file_size, tags, category, fee, license_rule, license_price,
			royalty_ratio, revoked, blob_id, preview_uri, transaction_digest,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (work_id) DO UPDATE SET
			creator = EXCLUDED.creator,
			parent_id = EXCLUDED.parent_id,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			file_type = EXCLUDED.file_type,
			file_size = EXCLUDED.file_size,
			tags = EXCLUDED.tags,
			category = EXCLUDED.category,
			fee = EXCLUDED.fee,
			license_rule = EXCLUDED.license_rule,
			license_price = EXCLUDED.license_price,
			royalty_ratio = EXCLUDED.royalty_ratio,
			revoked = EXCLUDED.revoked,
			blob_id = EXCLUDED.blob_id,
			preview_uri = EXCLUDED.preview_uri,
			transaction_digest = EXCLUDED.transaction_digest,
			updated_at = EXCLUDED.updated_at
	`, w.ID, w.Creator, parentID, w.Title, w.Description,
		w.FileType, w.FileSize, tags, w.Category, w.Fee, w.LicenseRule, w.LicensePrice,
		w.RoyaltyRatio, w.Revoked, nullable(w.BlobID), nullable(w.PreviewURI), w.TransactionDigest,
		createdAt, now)
	if err != nil {
		return fmt.Errorf("failed to upsert work %s: %w", w.ID, err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// SetRevoked flips a work's revocation flag.
func (s *Store) SetRevoked(ctx context.Context, workID string, revoked bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE works SET revoked = $2, updated_at = now() WHERE work_id = $1`, workID, revoked)
	if err != nil {
		return fmt.Errorf("failed to set revoked on %s: %w", workID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", royalty.ErrNotFound, workID)
	}
	return nil
}

// ListWorks returns works newest-first, optionally filtered by creator, with
// the total count for pagination.
func (s *Store) ListWorks(ctx context.Context, creator string, limit, offset int) ([]*royalty.Work, int, error) {
	filter := ""
	countQuery := `SELECT COUNT(*) FROM works`
	args := []any{limit, offset}
	countArgs := []any{}
	if creator != "" {
		filter = "WHERE creator = $3"
		countQuery = `SELECT COUNT(*) FROM works WHERE creator = $1`
		args = append(args, creator)
		countArgs = append(countArgs, creator)
	}

	var total int
	if err := s.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count works: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT `+workColumns+` FROM works `+filter+`
		ORDER BY created_at DESC, work_id ASC LIMIT $1 OFFSET $2`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list works: %w", err)
	}
	defer rows.Close()

	works := []*royalty.Work{}
	for rows.Next() {
		w, err := scanWork(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan work: %w", err)
		}
		works = append(works, w)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate works: %w", err)
	}
	return works, total, nil
}

// GetParent returns the declared parent of a work, "" for origin works, and
// royalty.ErrNotFound when the work itself is unknown.
func (s *Store) GetParent(ctx context.Context, workID string) (string, error) {
	var parentID *string
	err := s.pool.QueryRow(ctx, `SELECT parent_id FROM works WHERE work_id = $1`, workID).Scan(&parentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", royalty.ErrNotFound, workID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get parent of %s: %w", workID, err)
	}
	if parentID == nil {
		// Fall back to the lineage table for edges synced before the
		// parent column was backfilled.
		err := s.pool.QueryRow(ctx,
			`SELECT parent_id FROM lineage WHERE child_id = $1 LIMIT 1`, workID).Scan(&parentID)
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to get lineage edge of %s: %w", workID, err)
		}
	}
	return *parentID, nil
}

// GetChildren returns all works declaring workID as parent.
func (s *Store) GetChildren(ctx context.Context, workID string) ([]*royalty.Work, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+workColumns+` FROM works
		WHERE work_id IN (SELECT child_id FROM lineage WHERE parent_id = $1)`, workID)
	if err != nil {
		return nil, fmt.Errorf("failed to get children of %s: %w", workID, err)
	}
	defer rows.Close()

	children := []*royalty.Work{}
	for rows.Next() {
		w, err := scanWork(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan child work: %w", err)
		}
		children = append(children, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate children: %w", err)
	}
	return children, nil
}

// PutEdge upserts a (child, parent) lineage edge. Idempotent.
func (s *Store) PutEdge(ctx context.Context, childID, parentID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO lineage (child_id, parent_id) VALUES ($1, $2)
		ON CONFLICT (child_id, parent_id) DO NOTHING
	`, childID, parentID)
	if err != nil {
		return fmt.Errorf("failed to put lineage edge %s -> %s: %w", childID, parentID, err)
	}
	return nil
}

// ApplyDistribution credits royalty_earned for every work in the result map
// inside one transaction, keyed on (digest, work) so retries after a partial
// run skip credits that already landed. All-or-nothing for this call: a
// failure rolls the transaction back.
func (s *Store) ApplyDistribution(ctx context.Context, digest string, credits []royalty.Credit) error {
	if len(credits) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin distribution transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, c := range credits {
		tag, err := tx.Exec(ctx, `
			INSERT INTO distribution_credits (transaction_digest, work_id, amount)
			VALUES ($1, $2, $3)
			ON CONFLICT (transaction_digest, work_id) DO NOTHING
		`, digest, c.WorkID, c.Amount)
		if err != nil {
			return s.distributionFailure(ctx, digest, credits, err)
		}
		if tag.RowsAffected() == 0 {
			// Already credited by an earlier run under this digest.
			continue
		}

		tag, err = tx.Exec(ctx, `
			UPDATE works SET royalty_earned = royalty_earned + $2, updated_at = now()
			WHERE work_id = $1
		`, c.WorkID, c.Amount)
		if err != nil {
			return s.distributionFailure(ctx, digest, credits, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", royalty.ErrNotFound, c.WorkID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return s.distributionFailure(ctx, digest, credits, err)
	}
	return nil
}

// distributionFailure reports a failed distribution. When earlier runs under
// the same digest already committed some credits, the error carries the
// committed/failed split so the operator can see the retry is safe.
func (s *Store) distributionFailure(ctx context.Context, digest string, credits []royalty.Credit, cause error) error {
	if isConflict(cause) {
		cause = fmt.Errorf("%w: %v", royalty.ErrPersistenceConflict, cause)
	}

	rows, qerr := s.pool.Query(ctx,
		`SELECT work_id, amount FROM distribution_credits WHERE transaction_digest = $1`, digest)
	if qerr != nil {
		return cause
	}
	defer rows.Close()

	committed := map[string]int64{}
	for rows.Next() {
		var workID string
		var amount int64
		if err := rows.Scan(&workID, &amount); err != nil {
			return cause
		}
		committed[workID] = amount
	}
	if len(committed) == 0 {
		return cause
	}

	pf := &royalty.PartialFailureError{Cause: cause}
	for _, c := range credits {
		if _, ok := committed[c.WorkID]; ok {
			pf.Committed = append(pf.Committed, c)
		} else {
			pf.Failed = append(pf.Failed, c)
		}
	}
	return pf
}

// Claim increments royalty_claimed iff the claimable balance covers the
// amount, checking and incrementing in the same statement so concurrent
// claims against a stale snapshot cannot both pass.
func (s *Store) Claim(ctx context.Context, workID string, amount int64) (*royalty.ClaimResult, error) {
	var remaining int64
	err := s.pool.QueryRow(ctx, `
		UPDATE works SET royalty_claimed = royalty_claimed + $2, updated_at = now()
		WHERE work_id = $1 AND royalty_earned - royalty_claimed >= $2
		RETURNING royalty_earned - royalty_claimed
	`, workID, amount).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish "no such work" from "not enough balance".
		var claimable int64
		err := s.pool.QueryRow(ctx,
			`SELECT royalty_earned - royalty_claimed FROM works WHERE work_id = $1`, workID).Scan(&claimable)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", royalty.ErrNotFound, workID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to check claimable for %s: %w", workID, err)
		}
		return nil, fmt.Errorf("%w: claim %d, available %d", royalty.ErrInsufficientClaimable, amount, claimable)
	}
	if err != nil {
		if isConflict(err) {
			return nil, fmt.Errorf("%w: %v", royalty.ErrPersistenceConflict, err)
		}
		return nil, fmt.Errorf("failed to claim for %s: %w", workID, err)
	}
	return &royalty.ClaimResult{Claimed: amount, Remaining: remaining}, nil
}

// InsertEvents appends revenue events to the audit trail.
func (s *Store) InsertEvents(ctx context.Context, events []royalty.RevenueEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(`
			INSERT INTO revenue_events (id, work_id, recipient, amount, revenue_type,
				flagged, transaction_digest, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING
		`, ev.ID, ev.WorkID, ev.Recipient, ev.Amount, string(ev.Type),
			ev.Flagged, ev.TransactionDigest, ev.CreatedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert revenue events: %w", err)
		}
	}
	return nil
}

// EventRecord is a revenue event joined with its work's title for display.
type EventRecord struct {
	royalty.RevenueEvent
	WorkTitle string `json:"workTitle"`
}

// EventsByCreator returns the revenue events landing on works owned by the
// given creator, newest first.
func (s *Store) EventsByCreator(ctx context.Context, creator string, limit, offset int) ([]EventRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.id, e.work_id, e.recipient, e.amount, e.revenue_type, e.flagged,
			e.transaction_digest, e.created_at, COALESCE(w.title, '')
		FROM revenue_events e
		JOIN works w ON w.work_id = e.work_id
		WHERE w.creator = $1
		ORDER BY e.created_at DESC, e.id ASC
		LIMIT $2 OFFSET $3
	`, creator, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query revenue events: %w", err)
	}
	defer rows.Close()

	records := []EventRecord{}
	for rows.Next() {
		var rec EventRecord
		var typ string
		if err := rows.Scan(&rec.ID, &rec.WorkID, &rec.Recipient, &rec.Amount, &typ,
			&rec.Flagged, &rec.TransactionDigest, &rec.CreatedAt, &rec.WorkTitle); err != nil {
			return nil, fmt.Errorf("failed to scan revenue event: %w", err)
		}
		rec.Type = royalty.RevenueType(typ)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate revenue events: %w", err)
	}
	return records, nil
}

// RevenueStats sums a creator's revenue split by classification.
type RevenueStats struct {
	SalesRevenue   int64 `json:"salesRevenue"`
	RoyaltyRevenue int64 `json:"royaltyRevenue"`
	TotalRevenue   int64 `json:"totalRevenue"`
}

func (s *Store) StatsByCreator(ctx context.Context, creator string) (*RevenueStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.revenue_type, COALESCE(SUM(e.amount), 0)
		FROM revenue_events e
		JOIN works w ON w.work_id = e.work_id
		WHERE w.creator = $1
		GROUP BY e.revenue_type
	`, creator)
	if err != nil {
		return nil, fmt.Errorf("failed to query revenue stats: %w", err)
	}
	defer rows.Close()

	stats := &RevenueStats{}
	for rows.Next() {
		var typ string
		var sum int64
		if err := rows.Scan(&typ, &sum); err != nil {
			return nil, fmt.Errorf("failed to scan revenue stats: %w", err)
		}
		switch royalty.RevenueType(typ) {
		case royalty.RevenueTypeSale:
			stats.SalesRevenue = sum
		case royalty.RevenueTypeRoyalty:
			stats.RoyaltyRevenue = sum
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate revenue stats: %w", err)
	}
	stats.TotalRevenue = stats.SalesRevenue + stats.RoyaltyRevenue
	return stats, nil
}

// isConflict reports whether a pg error is a lost race worth retrying:
// serialization failures, deadlocks, or unique violations from concurrent
// writers.
func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "23505":
		return true
	}
	return false
}
