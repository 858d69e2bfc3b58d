package royalty

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the referenced work id does not exist in the
	// registry. Local to the call, not retryable.
	ErrNotFound = errors.New("royalty: work not found")

	// ErrLineageCycle means an ancestor walk exceeded the depth bound.
	// Indicates corrupted lineage data and must reach an operator.
	ErrLineageCycle = errors.New("royalty: lineage cycle detected")

	// ErrInsufficientClaimable means a claim exceeded earned minus claimed.
	ErrInsufficientClaimable = errors.New("royalty: insufficient claimable balance")

	// ErrPersistenceConflict means an atomic update lost a race or the store
	// reported a conflict. The whole operation is safe to retry.
	ErrPersistenceConflict = errors.New("royalty: persistence conflict")

	// ErrInvalidAmount means a caller supplied a non-positive amount.
	ErrInvalidAmount = errors.New("royalty: amount must be positive")
)

// PartialFailureError reports a distribution commit where some ancestor
// credits landed and others did not. The caller is expected to re-run the
// distribution; committed credits are protected from double-application by
// per-(digest, work) idempotency keys in the store.
type PartialFailureError struct {
	Committed []Credit
	Failed    []Credit
	Cause     error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("royalty: distribution partially committed (%d applied, %d failed): %v",
		len(e.Committed), len(e.Failed), e.Cause)
}

func (e *PartialFailureError) Unwrap() error { return e.Cause }
