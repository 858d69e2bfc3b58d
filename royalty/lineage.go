package royalty

import (
	"context"
	"fmt"
)

// DefaultMaxDepth bounds every ancestor walk. Lineage chains are shallow in
// practice; anything deeper than this is treated as corrupted data.
const DefaultMaxDepth = 64

// walkAncestors climbs the parent chain starting at startID, invoking fn for
// each ancestor in order (immediate parent first). fn returns false to stop
// the walk early. The walk is iterative with a visited set so a malformed
// cycle fails with ErrLineageCycle instead of looping.
//
// Both Distribute and Attribute go through this single walk so the two can
// never disagree about ancestor ordering.
func walkAncestors(ctx context.Context, lineage LineageStore, registry WorkRegistry, startID string, maxDepth int, fn func(ancestor *Work, depth int) (bool, error)) error {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	visited := map[string]bool{startID: true}
	current := startID

	for depth := 1; ; depth++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if depth > maxDepth {
			return fmt.Errorf("%w: walk from %s exceeded depth %d", ErrLineageCycle, startID, maxDepth)
		}

		parentID, err := lineage.GetParent(ctx, current)
		if err != nil {
			return fmt.Errorf("failed to get parent of %s: %w", current, err)
		}
		if parentID == "" {
			return nil
		}
		if visited[parentID] {
			return fmt.Errorf("%w: %s revisited during walk from %s", ErrLineageCycle, parentID, startID)
		}
		visited[parentID] = true

		parent, err := registry.GetWork(ctx, parentID)
		if err != nil {
			return fmt.Errorf("failed to load ancestor %s: %w", parentID, err)
		}

		cont, err := fn(parent, depth)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
		current = parentID
	}
}

// Ancestors resolves the full ancestor chain of a work, immediate parent
// first and the origin work last. Returns ErrNotFound for an unknown work
// and ErrLineageCycle for corrupted lineage.
func (e *Engine) Ancestors(ctx context.Context, workID string) ([]*Work, error) {
	if _, err := e.cfg.Registry.GetWork(ctx, workID); err != nil {
		return nil, err
	}

	ancestors := []*Work{}
	err := walkAncestors(ctx, e.cfg.Lineage, e.cfg.Registry, workID, e.cfg.MaxDepth, func(ancestor *Work, depth int) (bool, error) {
		ancestors = append(ancestors, ancestor)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return ancestors, nil
}
