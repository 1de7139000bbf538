package pagination

import (
	"context"
	"time"

	"github.com/Sternrassler/gmgn-scan/pkg/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StopReason tells why discovery ended.
type StopReason string

const (
	StopFetchFailed    StopReason = "fetch_failed"
	StopEmptyPage      StopReason = "empty_page"
	StopPredicate      StopReason = "predicate"
	StopNoCursor       StopReason = "no_cursor"
	StopRepeatedCursor StopReason = "repeated_cursor"
	StopPageCap        StopReason = "page_cap"
	StopCancelled      StopReason = "cancelled"
)

const defaultMaxPages = 1000

// Discovery is the outcome of a walk: the pages to fetch, in cursor order.
type Discovery struct {
	Pages  []PageDescriptor
	Reason StopReason

	// Records counts records seen while walking, for logging only.
	Records int
}

// WalkerConfig holds walker configuration.
type WalkerConfig struct {
	// MaxPages is the hard backstop on iterations (default 1000).
	MaxPages int

	// FormatCursor, when set, renders cursors for debug logs. Cursors are
	// always passed back to the source verbatim.
	FormatCursor func(cursor string) (string, error)
}

// Walker discovers the page chain of a resource.
type Walker[R Record] struct {
	source       PageSource[R]
	maxPages     int
	formatCursor func(string) (string, error)
}

// NewWalker creates a walker over source.
func NewWalker[R Record](source PageSource[R], cfg WalkerConfig) *Walker[R] {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	return &Walker[R]{source: source, maxPages: cfg.MaxPages, formatCursor: cfg.FormatCursor}
}

// cursorText is the log form of cursor: the formatted value when a formatter
// is configured and succeeds, the raw cursor otherwise.
func (w *Walker[R]) cursorText(cursor string) string {
	if w.formatCursor == nil {
		return cursor
	}
	if text, err := w.formatCursor(cursor); err == nil {
		return text
	}
	return cursor
}

// Discover follows the cursor chain of resource from the first page. A failed
// page ends the walk and is left out; every other stopping page is kept so the
// caller can filter it. Discover never returns an error: a failure on the
// first page yields an empty Discovery with Reason StopFetchFailed.
func (w *Walker[R]) Discover(ctx context.Context, resource string, stop StopFunc[R]) Discovery {
	start := time.Now()
	ctx, span := tracing.Tracer("pagination").Start(ctx, "walker.discover",
		trace.WithAttributes(attribute.String("resource", resource)),
	)
	defer span.End()

	logger := log.With().Str("component", "walker").Str("resource", resource).Logger()

	var disc Discovery
	seen := make(map[string]struct{})
	cursor := ""

	for index := 0; ; index++ {
		if index >= w.maxPages {
			disc.Reason = StopPageCap
			logger.Warn().Int("max_pages", w.maxPages).Msg("Page cap reached - stopping discovery")
			break
		}
		if ctx.Err() != nil {
			disc.Reason = StopCancelled
			break
		}

		desc := PageDescriptor{Resource: resource, Cursor: cursor, Index: index}
		page, err := w.source.FetchPage(ctx, desc)
		if err == nil && page == nil {
			err = errNilPage
		}
		if err != nil {
			disc.Reason = StopFetchFailed
			if ctx.Err() != nil {
				disc.Reason = StopCancelled
			}
			logger.Warn().Err(err).Int("page", index).Msg("Discovery page unavailable - keeping pages found so far")
			break
		}

		disc.Pages = append(disc.Pages, desc)
		disc.Records += len(page.Records)

		if len(page.Records) == 0 {
			disc.Reason = StopEmptyPage
			break
		}
		if stop != nil && stop(page) {
			disc.Reason = StopPredicate
			break
		}

		next := page.NextCursor
		if next == "" {
			disc.Reason = StopNoCursor
			break
		}
		seen[cursor] = struct{}{}
		if _, dup := seen[next]; dup {
			disc.Reason = StopRepeatedCursor
			logger.Warn().Str("cursor", next).Int("page", index).Msg("Upstream repeated a cursor - stopping discovery")
			break
		}

		logger.Debug().Int("page", index).Str("cursor", w.cursorText(next)).Int("records", len(page.Records)).Msg("Found page")
		cursor = next
	}

	discoveryStopsTotal.WithLabelValues(string(disc.Reason)).Inc()
	discoveredPages.Observe(float64(len(disc.Pages)))
	span.SetAttributes(
		attribute.Int("pages", len(disc.Pages)),
		attribute.String("stop_reason", string(disc.Reason)),
	)

	logger.Debug().
		Int("pages", len(disc.Pages)).
		Int("records", disc.Records).
		Str("reason", string(disc.Reason)).
		Dur("duration", time.Since(start)).
		Msg("Discovery complete")

	return disc
}
