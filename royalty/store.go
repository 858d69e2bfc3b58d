package royalty

import "context"

// WorkRegistry is the persistent record per work. Implementations must make
// ApplyDistribution and Claim safe under concurrent callers touching
// overlapping rows, and must never return stale snapshots for the
// compare-and-increment in Claim.
type WorkRegistry interface {
	// GetWork returns the work or ErrNotFound.
	GetWork(ctx context.Context, workID string) (*Work, error)

	// ApplyDistribution atomically increments royalty_earned for every
	// credit, all-or-nothing, keyed by the transaction digest so a retry
	// after a partial commit does not double-credit. Credits already
	// recorded for (digest, workID) are skipped.
	ApplyDistribution(ctx context.Context, digest string, credits []Credit) error

	// Claim increments royalty_claimed by amount iff the claimable balance
	// covers it, re-deriving claimable in the same statement that performs
	// the increment. Returns ErrNotFound or ErrInsufficientClaimable.
	Claim(ctx context.Context, workID string, amount int64) (*ClaimResult, error)
}

// LineageStore maps each work to its direct parent and children.
type LineageStore interface {
	// GetParent returns the declared parent id, or "" for an origin work.
	// Returns ErrNotFound if workID itself is unknown.
	GetParent(ctx context.Context, workID string) (string, error)

	// GetChildren returns all works declaring workID as parent. Order is
	// not guaranteed stable across calls.
	GetChildren(ctx context.Context, workID string) ([]*Work, error)

	// PutEdge upserts a (child, parent) edge; repeated calls with the same
	// pair are no-ops.
	PutEdge(ctx context.Context, childID, parentID string) error
}

// EventLog is the append-only revenue audit trail. Display-only; failures
// here never affect earned/claimed totals.
type EventLog interface {
	InsertEvents(ctx context.Context, events []RevenueEvent) error
}
