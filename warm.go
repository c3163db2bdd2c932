package luasense

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jward/luasense/internal/loader"
	"github.com/jward/luasense/internal/modcache"
	"github.com/jward/luasense/internal/store"
)

// WarmResult summarizes a WarmModules run.
type WarmResult struct {
	// Modules is the number of modules discovered under the root.
	Modules int
	// Analysed counts modules analysed from source.
	Analysed int
	// Reused counts modules whose stored summary was still current.
	Reused int
	// Missing lists modules that could not be loaded, sorted.
	Missing []string
	// Elapsed is the wall time of the run.
	Elapsed time.Duration
}

// WarmModules analyses every module under root in parallel, bounded by the
// number of CPUs, and writes the summaries to the store in one
// transaction. Modules required from outside root resolve through the same
// root only. Without a store the results are discarded, which still
// reports the modules that fail to load.
//
// The three phases are:
//
//	Phase A (serial):   Discover module files under root.
//	Phase B (parallel): Resolve each module through a Cache writing to a BatchedStore.
//	Phase C (serial):   Commit the batch and drop the Engine's cached copies.
func (e *Engine) WarmModules(ctx context.Context, root string) (*WarmResult, error) {
	start := time.Now()

	// ---- Phase A: discovery ----
	l := loader.New(e.templates, root)
	mods, err := l.Discover(root)
	if err != nil {
		return nil, fmt.Errorf("luasense: warm %s: %w", root, err)
	}
	res := &WarmResult{Modules: len(mods)}
	if len(mods) == 0 {
		return res, nil
	}

	// ---- Phase B: parallel analysis ----
	var batch *store.BatchedStore
	var summaries store.SummaryStore
	if e.store != nil {
		batch = store.NewBatchedStore(e.store)
		summaries = batch
	}
	cache := modcache.New(l, e.analysisOptions(), summaries)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(runtime.NumCPU(), 1))
	for _, m := range mods {
		g.Go(func() error {
			_, err := cache.Resolve(gctx, m.Name)
			switch {
			case errors.Is(err, loader.ErrNotFound):
				mu.Lock()
				res.Missing = append(res.Missing, m.Name)
				mu.Unlock()
				return nil
			case err != nil:
				return fmt.Errorf("warm %s: %w", m.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("luasense: %w", err)
	}

	// ---- Phase C: commit ----
	if batch != nil && batch.Len() > 0 {
		if err := e.store.CommitBatch(batch); err != nil {
			return nil, fmt.Errorf("luasense: warm commit: %w", err)
		}
	}
	names := make([]string, len(mods))
	for i, m := range mods {
		names[i] = m.Name
	}
	e.cache.Invalidate(names...)

	sort.Strings(res.Missing)
	res.Analysed, res.Reused = cache.Stats()
	res.Elapsed = time.Since(start)
	e.log.Info("warm.done",
		"root", root,
		"modules", res.Modules,
		"analysed", res.Analysed,
		"reused", res.Reused,
		"missing", len(res.Missing),
		"elapsed", res.Elapsed,
	)
	return res, nil
}
