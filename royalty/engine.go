// Package royalty implements the cascading royalty distribution engine for
// the work lineage graph: given revenue generated at a work, it splits the
// amount up the ancestor chain by each ancestor's declared royalty ratio,
// classifies pay-transaction transfers as sales or royalties, and gates
// withdrawals against each work's claimable balance.
//
// All amounts are integers in the smallest currency unit; splits use floor
// division at every hop so results are deterministic and conserve the input
// exactly.
package royalty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type Config struct {
	Logger   *slog.Logger
	Registry WorkRegistry
	Lineage  LineageStore
	Events   EventLog
	Clock    clockwork.Clock

	// MaxDepth caps every ancestor walk; 0 means DefaultMaxDepth.
	MaxDepth int

	// OpTimeout is the wall-clock budget for a single Distribute run.
	// 0 disables the budget. A run that exceeds it fails with the context
	// error and is safe to retry as a unit.
	OpTimeout time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Registry == nil {
		return errors.New("work registry is required")
	}
	if cfg.Lineage == nil {
		return errors.New("lineage store is required")
	}
	if cfg.Events == nil {
		return errors.New("event log is required")
	}
	if cfg.MaxDepth < 0 {
		return errors.New("max depth must not be negative")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Engine wires the distribution, attribution, and claim logic to the stores.
// It holds no mutable state of its own; every invocation is an independent
// unit of work and concurrent invocations rely on the stores' atomic-update
// contracts.
type Engine struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// Distribute cascades revenue generated at originWorkID up its ancestor
// chain and persists the per-work increments under the given transaction
// digest. The returned map holds the amount each touched work retains; its
// values always sum to revenue.
//
// The split at each hop is gated on the parent's declared royalty ratio: a
// parent with ratio zero (or no declared ratio) takes nothing and the walk
// ends. Otherwise the parent takes floor(held * ratio / 100) and the child
// keeps the remainder, including any rounding remainder.
func (e *Engine) Distribute(ctx context.Context, originWorkID string, revenue int64, digest string) (map[string]int64, error) {
	if revenue <= 0 {
		return nil, fmt.Errorf("%w: revenue %d", ErrInvalidAmount, revenue)
	}

	if e.cfg.OpTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.OpTimeout)
		defer cancel()
	}

	// Fail before any mutation if the origin is unknown.
	if _, err := e.cfg.Registry.GetWork(ctx, originWorkID); err != nil {
		return nil, err
	}

	dist, err := e.plan(ctx, originWorkID, revenue)
	if err != nil {
		return nil, err
	}

	credits := make([]Credit, 0, len(dist))
	for workID, amount := range dist {
		if amount > 0 {
			credits = append(credits, Credit{WorkID: workID, Amount: amount})
		}
	}
	// Stable order keeps row lock acquisition consistent across concurrent
	// distributions over shared ancestors.
	sort.Slice(credits, func(i, j int) bool { return credits[i].WorkID < credits[j].WorkID })

	if err := e.cfg.Registry.ApplyDistribution(ctx, digest, credits); err != nil {
		return nil, fmt.Errorf("failed to apply distribution for %s: %w", originWorkID, err)
	}

	e.log.Debug("royalty: distribution applied",
		"origin", originWorkID, "revenue", revenue, "digest", digest, "levels", len(dist))
	return dist, nil
}

// plan computes the distribution map without touching the registry's royalty
// totals. Deterministic: identical lineage and ratios yield identical maps.
func (e *Engine) plan(ctx context.Context, originWorkID string, revenue int64) (map[string]int64, error) {
	dist := map[string]int64{originWorkID: 0}
	held := revenue
	current := originWorkID

	err := walkAncestors(ctx, e.cfg.Lineage, e.cfg.Registry, originWorkID, e.cfg.MaxDepth,
		func(parent *Work, depth int) (bool, error) {
			if parent.RoyaltyRatio <= 0 {
				// The ratio gate is on the parent: no declared ratio means
				// the current level keeps everything.
				dist[current] += held
				held = 0
				return false, nil
			}

			parentShare := held * int64(parent.RoyaltyRatio) / 100
			dist[current] += held - parentShare
			dist[parent.ID] += 0 // mark visited even for a floored-to-zero share
			held = parentShare
			current = parent.ID

			if parentShare == 0 {
				return false, nil
			}
			return true, nil
		})
	if err != nil {
		return nil, err
	}

	// Terminal level (no parent, or walk stopped) retains whatever is held.
	dist[current] += held
	return dist, nil
}

// eventNamespace seeds deterministic revenue event IDs. A replayed
// transaction regenerates the same IDs, so the event log can drop
// duplicates on insert.
var eventNamespace = uuid.MustParse("3f1aa4c2-8b7d-4f7e-9c64-0d2a5b1e6f90")

func eventID(digest string, index int) uuid.UUID {
	return uuid.NewSHA1(eventNamespace, []byte(fmt.Sprintf("%s/%d", digest, index)))
}

// Attribute classifies each transfer of a completed pay transaction as a
// sale or a royalty, resolves which work's ledger a royalty belongs to by
// walking the paid work's ancestor chain, and appends the resulting events
// to the audit log. Labeling only: Distribute is the sole mutator of earned
// totals.
//
// Transfers with non-positive amounts or empty recipients are skipped. A
// royalty whose recipient matches no ancestor within the depth bound is
// attributed to the paid work itself and flagged for review rather than
// dropped.
func (e *Engine) Attribute(ctx context.Context, paidWorkID string, digest string, transfers []Transfer) ([]RevenueEvent, error) {
	paid, err := e.cfg.Registry.GetWork(ctx, paidWorkID)
	if err != nil {
		return nil, err
	}

	now := e.cfg.Clock.Now().UTC()
	events := make([]RevenueEvent, 0, len(transfers))

	for i, t := range transfers {
		if t.Amount <= 0 || t.Recipient == "" {
			continue
		}

		ev := RevenueEvent{
			ID:                eventID(digest, i),
			WorkID:            paidWorkID,
			Recipient:         t.Recipient,
			Amount:            t.Amount,
			TransactionDigest: digest,
			CreatedAt:         now,
		}

		if t.Recipient == paid.Creator {
			ev.Type = RevenueTypeSale
			events = append(events, ev)
			continue
		}

		ev.Type = RevenueTypeRoyalty
		matched := false
		err := walkAncestors(ctx, e.cfg.Lineage, e.cfg.Registry, paidWorkID, e.cfg.MaxDepth,
			func(ancestor *Work, depth int) (bool, error) {
				if ancestor.Creator == t.Recipient {
					ev.WorkID = ancestor.ID
					matched = true
					return false, nil
				}
				return true, nil
			})
		if err != nil {
			return nil, err
		}
		if !matched {
			ev.Flagged = true
			e.log.Warn("royalty: royalty recipient matched no ancestor, attributing to paid work",
				"work", paidWorkID, "recipient", t.Recipient, "digest", digest)
		}
		events = append(events, ev)
	}

	if len(events) > 0 {
		if err := e.cfg.Events.InsertEvents(ctx, events); err != nil {
			return nil, fmt.Errorf("failed to record revenue events for %s: %w", digest, err)
		}
	}
	return events, nil
}

// Claim withdraws amount from the work's claimable balance. The registry
// performs the balance check and the increment in one atomic step, so two
// concurrent claims can never both succeed past the available balance.
func (e *Engine) Claim(ctx context.Context, workID string, amount int64) (*ClaimResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: claim %d", ErrInvalidAmount, amount)
	}

	res, err := e.cfg.Registry.Claim(ctx, workID, amount)
	if err != nil {
		return nil, err
	}

	e.log.Info("royalty: claim settled", "work", workID, "claimed", res.Claimed, "remaining", res.Remaining)
	return res, nil
}

// Summary returns the earned/claimed/claimable totals for a work plus the
// direct children that contribute revenue to it. The child breakdown is
// display-only: if it cannot be loaded the summary degrades to an empty
// breakdown instead of failing.
func (e *Engine) Summary(ctx context.Context, workID string) (*Summary, error) {
	work, err := e.cfg.Registry.GetWork(ctx, workID)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Earned:    work.RoyaltyEarned,
		Claimed:   work.RoyaltyClaimed,
		Claimable: work.Claimable(),
		Breakdown: []ChildRevenue{},
	}

	children, err := e.cfg.Lineage.GetChildren(ctx, workID)
	if err != nil {
		e.log.Warn("royalty: failed to load children for summary breakdown", "work", workID, "error", err)
		return s, nil
	}
	for _, c := range children {
		s.Breakdown = append(s.Breakdown, ChildRevenue{
			ChildWorkID: c.ID,
			ChildTitle:  c.Title,
			ChildFee:    c.Fee,
		})
	}
	return s, nil
}

// ProcessPayment is the entry point for a completed pay transaction: it
// records the classified revenue events for the transaction's balance
// changes and then runs one distribution of the matched revenue from the
// paid work. The sale plus the royalties resolved to an ancestor equal the
// fee; flagged events stay in the audit log but never feed the cascade.
// The distribution is idempotent on the transaction digest, so the caller
// may retry the whole call after a conflict.
func (e *Engine) ProcessPayment(ctx context.Context, paidWorkID string, digest string, transfers []Transfer) ([]RevenueEvent, map[string]int64, error) {
	events, err := e.Attribute(ctx, paidWorkID, digest, transfers)
	if err != nil {
		return nil, nil, err
	}

	var revenue int64
	for _, ev := range events {
		if ev.Flagged {
			continue
		}
		revenue += ev.Amount
	}
	if revenue == 0 {
		e.log.Debug("royalty: pay transaction carried no revenue", "work", paidWorkID, "digest", digest)
		return events, map[string]int64{}, nil
	}

	dist, err := e.Distribute(ctx, paidWorkID, revenue, digest)
	if err != nil {
		return events, nil, err
	}
	return events, dist, nil
}
