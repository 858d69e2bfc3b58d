// Package works mirrors the on-chain work registry into PostgreSQL. A
// refresh loop pages through the chain gateway and upserts work rows and
// lineage edges; royalty balances are never written here, those belong to
// the distribution engine.
package works

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/atelierlabs/atelier/indexer/pkg/chain"
	"github.com/atelierlabs/atelier/indexer/pkg/metrics"
	"github.com/atelierlabs/atelier/royalty"
)

// Sink is the slice of the store the view writes through.
type Sink interface {
	UpsertWork(ctx context.Context, w *royalty.Work) error
	PutEdge(ctx context.Context, childID, parentID string) error
}

type ViewConfig struct {
	Logger          *slog.Logger
	Clock           clockwork.Clock
	Chain           chain.Client
	Sink            Sink
	RefreshInterval time.Duration
	PageSize        int
}

func (cfg *ViewConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Chain == nil {
		return errors.New("chain client is required")
	}
	if cfg.Sink == nil {
		return errors.New("store sink is required")
	}
	if cfg.RefreshInterval <= 0 {
		return errors.New("refresh interval must be greater than 0")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

type View struct {
	log       *slog.Logger
	cfg       ViewConfig
	refreshMu sync.Mutex

	readyOnce sync.Once
	readyCh   chan struct{}
}

func NewView(cfg ViewConfig) (*View, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &View{
		log:     cfg.Logger,
		cfg:     cfg,
		readyCh: make(chan struct{}),
	}, nil
}

func (v *View) Ready() bool {
	select {
	case <-v.readyCh:
		return true
	default:
		return false
	}
}

func (v *View) WaitReady(ctx context.Context) error {
	select {
	case <-v.readyCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while waiting for works view: %w", ctx.Err())
	}
}

func (v *View) Start(ctx context.Context) {
	go func() {
		v.log.Info("works: starting refresh loop", "interval", v.cfg.RefreshInterval)

		v.safeRefresh(ctx)

		ticker := v.cfg.Clock.NewTicker(v.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				v.safeRefresh(ctx)
			}
		}
	}()
}

func (v *View) safeRefresh(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			v.log.Error("works: refresh panicked", "panic", r)
			metrics.ViewRefreshTotal.WithLabelValues("works", "panic").Inc()
		}
	}()

	if err := v.Refresh(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		v.log.Error("works: refresh failed", "error", err)
	}
}

func (v *View) Refresh(ctx context.Context) error {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()

	refreshStart := time.Now()
	v.log.Debug("works: refresh started")
	defer func() {
		duration := time.Since(refreshStart)
		v.log.Info("works: refresh completed", "duration", duration.String())
		metrics.ViewRefreshDuration.WithLabelValues("works").Observe(duration.Seconds())
	}()

	var synced int
	cursor := ""
	for {
		page, err := v.cfg.Chain.FetchWorks(ctx, cursor, v.cfg.PageSize)
		if err != nil {
			metrics.ViewRefreshTotal.WithLabelValues("works", "error").Inc()
			metrics.GatewayRequestsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("failed to fetch works page: %w", err)
		}
		metrics.GatewayRequestsTotal.WithLabelValues("success").Inc()

		for i := range page.Works {
			cw := &page.Works[i]
			work := convertWork(cw)

			if err := v.cfg.Sink.UpsertWork(ctx, work); err != nil {
				return fmt.Errorf("failed to upsert work %s: %w", cw.ID, err)
			}
			if work.ParentID != "" {
				if err := v.cfg.Sink.PutEdge(ctx, work.ID, work.ParentID); err != nil {
					return fmt.Errorf("failed to record lineage edge %s -> %s: %w", work.ID, work.ParentID, err)
				}
			}
			synced++
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	metrics.WorksSyncedTotal.Add(float64(synced))

	v.readyOnce.Do(func() {
		close(v.readyCh)
		v.log.Info("works: view is now ready", "synced", synced)
	})

	metrics.ViewRefreshTotal.WithLabelValues("works", "success").Inc()
	return nil
}

func convertWork(cw *chain.Work) *royalty.Work {
	return &royalty.Work{
		ID:                cw.ID,
		Creator:           cw.Creator,
		ParentID:          cw.ParentID,
		Title:             cw.Title,
		Description:       cw.Description,
		FileType:          cw.FileType,
		FileSize:          cw.FileSize,
		Tags:              cw.Tags,
		Category:          cw.Category,
		Fee:               cw.Fee,
		LicenseRule:       cw.LicenseRule,
		LicensePrice:      cw.LicensePrice,
		RoyaltyRatio:      cw.RatioPercent(),
		Revoked:           cw.Revoked,
		BlobID:            cw.BlobID,
		PreviewURI:        cw.PreviewURI,
		TransactionDigest: cw.TransactionDigest,
		CreatedAt:         cw.CreatedAt(),
	}
}
