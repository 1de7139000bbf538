// Package aggregate merges fetched pages into a deduplicated, filtered result.
package aggregate

import (
	"sort"
	"sync"

	"github.com/Sternrassler/gmgn-scan/pkg/pagination"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gmgnscan_aggregated_records_total",
	Help: "Records seen by the aggregator, by outcome",
}, []string{"outcome"})

// ActorFunc returns the actor of a record (e.g. the maker wallet). An empty
// actor is not counted.
type ActorFunc[R pagination.Record] func(R) string

// Result is the merged dataset of one scan.
type Result[R pagination.Record] struct {
	Records        []R      `json:"records"`
	Total          int      `json:"total"`
	DistinctActors int      `json:"distinct_actors"`
	Actors         []string `json:"actors"`
	Duplicates     int      `json:"duplicates"`
	Malformed      int      `json:"malformed"`
	Filtered       int      `json:"filtered"`
}

// Aggregator is the state of one scan: seen keys, accepted records in arrival
// order, and the distinct actor set. It is safe for concurrent use. The seen
// set only grows.
type Aggregator[R pagination.Record] struct {
	filter Filter[R]
	actor  ActorFunc[R]
	limit  int

	mu         sync.Mutex
	seen       map[string]struct{}
	records    []R
	actors     map[string]struct{}
	actorOrder []string
	duplicates int
	malformed  int
	filtered   int
}

// New creates an aggregator. A nil filter accepts everything; a nil actor
// function disables actor counting.
func New[R pagination.Record](filter Filter[R], actor ActorFunc[R]) *Aggregator[R] {
	if filter == nil {
		filter = All[R]()
	}
	return &Aggregator[R]{
		filter: filter,
		actor:  actor,
		seen:   make(map[string]struct{}),
		actors: make(map[string]struct{}),
	}
}

// WithLimit caps the number of accepted records; later records are dropped
// as filtered. n <= 0 means unlimited.
func (a *Aggregator[R]) WithLimit(n int) *Aggregator[R] {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.limit = n
	return a
}

// Add merges one page.
func (a *Aggregator[R]) Add(page *pagination.PageResult[R]) {
	if page == nil {
		return
	}
	a.AddRecords(page.Records)
}

// AddRecords merges records. A record with an empty key is skipped as
// malformed. A record is checked against the seen set only after it passes
// the filter, so a filtered record never hides a later valid one.
func (a *Aggregator[R]) AddRecords(records []R) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, r := range records {
		key := safeKey(r)
		if key == "" {
			a.malformed++
			recordsTotal.WithLabelValues("malformed").Inc()
			continue
		}
		if !a.filter(r) {
			a.filtered++
			recordsTotal.WithLabelValues("filtered").Inc()
			continue
		}
		if _, dup := a.seen[key]; dup {
			a.duplicates++
			recordsTotal.WithLabelValues("duplicate").Inc()
			continue
		}
		if a.limit > 0 && len(a.records) >= a.limit {
			a.filtered++
			recordsTotal.WithLabelValues("filtered").Inc()
			continue
		}

		a.seen[key] = struct{}{}
		a.records = append(a.records, r)
		recordsTotal.WithLabelValues("accepted").Inc()

		if a.actor != nil {
			if actor := a.actor(r); actor != "" {
				if _, ok := a.actors[actor]; !ok {
					a.actors[actor] = struct{}{}
					a.actorOrder = append(a.actorOrder, actor)
				}
			}
		}
	}
}

// Len returns the number of accepted records.
func (a *Aggregator[R]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// Result returns a snapshot of the merged dataset.
func (a *Aggregator[R]) Result() Result[R] {
	a.mu.Lock()
	defer a.mu.Unlock()

	records := make([]R, len(a.records))
	copy(records, a.records)
	actors := make([]string, len(a.actorOrder))
	copy(actors, a.actorOrder)

	return Result[R]{
		Records:        records,
		Total:          len(records),
		DistinctActors: len(actors),
		Actors:         actors,
		Duplicates:     a.duplicates,
		Malformed:      a.malformed,
		Filtered:       a.filtered,
	}
}

// Merge aggregates pages in one call.
func Merge[R pagination.Record](pages []*pagination.PageResult[R], filter Filter[R], actor ActorFunc[R]) Result[R] {
	agg := New[R](filter, actor)
	for _, p := range pages {
		agg.Add(p)
	}
	return agg.Result()
}

// SortBy sorts records in place by key, descending when desc is set. The
// sort is stable so equal keys keep their arrival order.
func SortBy[R any](records []R, key func(R) int64, desc bool) {
	sort.SliceStable(records, func(i, j int) bool {
		if desc {
			return key(records[i]) > key(records[j])
		}
		return key(records[i]) < key(records[j])
	})
}

// safeKey returns the record key, treating a panicking Key as malformed.
func safeKey[R pagination.Record](r R) (key string) {
	defer func() {
		if recover() != nil {
			key = ""
		}
	}()
	return r.Key()
}
