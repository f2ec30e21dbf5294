package pool

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// PruneReport summarizes a prune pass.
type PruneReport struct {
	// Generation is the generation whose placeholders were kept.
	Generation string `json:"generation"`

	// Removed counts deleted rows per shard, then per type. Shards with
	// nothing removed are omitted.
	Removed map[int]map[string]int64 `json:"removed"`

	Total int64 `json:"total"`
}

// PruneUnvalidated deletes, on every shard, the unvalidated rows inserted
// by other generations: placeholders of computations that never finished.
// Rows of the current generation are kept, so running it again while
// this process works is harmless. Idempotent.
func (p *Pool) PruneUnvalidated(ctx context.Context) (PruneReport, error) {
	report := PruneReport{
		Generation: p.generation,
		Removed:    make(map[int]map[string]int64),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range p.shards {
		g.Go(func() error {
			removed, err := timed(p, "prune", "", i, func() (map[string]int64, error) {
				return s.PruneUnvalidated(gctx, p.generation)
			})
			if err != nil {
				return err
			}
			if len(removed) == 0 {
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			report.Removed[i] = removed
			for _, n := range removed {
				report.Total += n
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return PruneReport{}, err
	}

	p.logger.Info("prune pass complete",
		"generation", p.generation,
		"removed", report.Total,
	)
	return report, nil
}
