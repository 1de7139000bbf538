package pagination

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Sternrassler/gmgn-scan/pkg/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var errNilPage = errors.New("page source returned no page")

// Config holds batch fetcher configuration
type Config struct {
	// MaxWorkers is the default bound on parallel page fetches.
	MaxWorkers int

	// BufferSize of the results channel (default: number of descriptors)
	BufferSize int
}

// DefaultConfig returns the default fan-out configuration.
func DefaultConfig() Config {
	return Config{MaxWorkers: 5}
}

// BatchFetcher fetches discovered pages with a bounded worker pool.
type BatchFetcher[R Record] struct {
	source PageSource[R]
	config Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher[R Record](source PageSource[R], config Config) *BatchFetcher[R] {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 5
	}
	return &BatchFetcher[R]{source: source, config: config}
}

// FetchAll fetches every descriptor and returns the pages that succeeded, in
// completion order. Failed pages are logged and dropped.
func (bf *BatchFetcher[R]) FetchAll(ctx context.Context, descs []PageDescriptor, maxWorkers int) []*PageResult[R] {
	results := make([]*PageResult[R], 0, len(descs))
	bf.Stream(ctx, descs, maxWorkers, func(page *PageResult[R]) {
		results = append(results, page)
	})
	return results
}

// Stream fetches every descriptor with at most maxWorkers concurrent fetches
// (Config.MaxWorkers when maxWorkers <= 0) and passes each successful page to
// sink as it completes. sink runs on the calling goroutine only, so it needs
// no locking. Descriptors repeating a (resource, cursor) pair are fetched
// once. A failed page never stops its siblings. Stream returns the number of
// pages delivered.
func (bf *BatchFetcher[R]) Stream(ctx context.Context, descs []PageDescriptor, maxWorkers int, sink func(*PageResult[R])) int {
	if maxWorkers <= 0 {
		maxWorkers = bf.config.MaxWorkers
	}
	queue := dedupDescriptors(descs)
	if len(queue) == 0 {
		return 0
	}
	if maxWorkers > len(queue) {
		maxWorkers = len(queue)
	}

	start := time.Now()
	ctx, span := tracing.Tracer("pagination").Start(ctx, "fetcher.fetch_all",
		trace.WithAttributes(
			attribute.Int("pages", len(queue)),
			attribute.Int("max_workers", maxWorkers),
		),
	)
	defer span.End()

	bufferSize := bf.config.BufferSize
	if bufferSize <= 0 {
		bufferSize = len(queue)
	}

	// Every descriptor is queued up front; discovery already bounded the count.
	pageQueue := make(chan PageDescriptor, len(queue))
	for _, d := range queue {
		pageQueue <- d
	}
	close(pageQueue)

	pageResults := make(chan *PageResult[R], bufferSize)

	var wg sync.WaitGroup
	for i := 0; i < maxWorkers; i++ {
		wg.Add(1)
		go bf.worker(ctx, pageQueue, pageResults, &wg, i)
	}

	go func() {
		wg.Wait()
		close(pageResults)
	}()

	delivered := 0
	for page := range pageResults {
		sink(page)
		delivered++
	}

	span.SetAttributes(attribute.Int("delivered", delivered))
	log.Debug().
		Str("component", "fetcher").
		Int("pages", len(queue)).
		Int("delivered", delivered).
		Int("workers", maxWorkers).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return delivered
}

// worker processes pages from the queue
func (bf *BatchFetcher[R]) worker(ctx context.Context, pageQueue <-chan PageDescriptor, results chan<- *PageResult[R], wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for desc := range pageQueue {
		if ctx.Err() != nil {
			log.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled)")
			return
		}

		workersBusy.Inc()
		page, err := bf.source.FetchPage(ctx, desc)
		workersBusy.Dec()

		if err == nil && page == nil {
			err = errNilPage
		}
		if err != nil {
			pageFetchesTotal.WithLabelValues("failed").Inc()
			log.Warn().
				Err(err).
				Int("worker_id", workerID).
				Str("resource", desc.Resource).
				Int("page", desc.Index).
				Msg("Page fetch failed - dropping page")
			continue
		}
		pageFetchesTotal.WithLabelValues("ok").Inc()

		if page.Descriptor == (PageDescriptor{}) {
			page.Descriptor = desc
		}
		results <- page
		pagesProcessed++
	}

	if pagesProcessed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", pagesProcessed).
			Msg("Worker completed")
	}
}

func dedupDescriptors(descs []PageDescriptor) []PageDescriptor {
	type pageKey struct{ resource, cursor string }
	seen := make(map[pageKey]struct{}, len(descs))
	out := make([]PageDescriptor, 0, len(descs))
	for _, d := range descs {
		k := pageKey{d.Resource, d.Cursor}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, d)
	}
	return out
}
