package pagination

import (
	"context"
)

// Engine runs discovery followed by fan-out for one resource.
type Engine[R Record] struct {
	walker  *Walker[R]
	fetcher *BatchFetcher[R]
}

// NewEngine creates an engine over one page source.
func NewEngine[R Record](source PageSource[R], walkerCfg WalkerConfig, fetchCfg Config) *Engine[R] {
	return &Engine[R]{
		walker:  NewWalker[R](source, walkerCfg),
		fetcher: NewBatchFetcher[R](source, fetchCfg),
	}
}

// Run discovers the page chain of resource, then fetches every discovered
// page with up to maxWorkers workers, handing pages to sink as they complete.
func (e *Engine[R]) Run(ctx context.Context, resource string, stop StopFunc[R], maxWorkers int, sink func(*PageResult[R])) Discovery {
	disc := e.walker.Discover(ctx, resource, stop)
	if len(disc.Pages) == 0 {
		return disc
	}
	e.fetcher.Stream(ctx, disc.Pages, maxWorkers, sink)
	return disc
}

// Walker returns the engine's walker.
func (e *Engine[R]) Walker() *Walker[R] { return e.walker }

// Fetcher returns the engine's batch fetcher.
func (e *Engine[R]) Fetcher() *BatchFetcher[R] { return e.fetcher }
