package pagination

import "context"

// Record is a domain entry with a natural key used for dedup.
type Record interface {
	Key() string
}

// Timestamped records expose a unix timestamp (seconds).
type Timestamped interface {
	Record
	Time() int64
}

// PageDescriptor identifies one page of a resource. An empty Cursor is the
// first page. Index is the position in discovery order.
type PageDescriptor struct {
	Resource string `json:"resource"`
	Cursor   string `json:"cursor,omitempty"`
	Index    int    `json:"index"`
}

// Boundary summarizes the timestamps of a page's records. HasTime is false
// when the records are not Timestamped or the page is empty.
type Boundary struct {
	Oldest  int64 `json:"oldest"`
	Newest  int64 `json:"newest"`
	Last    int64 `json:"last"`
	HasTime bool  `json:"has_time"`
}

// PageResult is one fetched page.
type PageResult[R Record] struct {
	Descriptor PageDescriptor
	Records    []R
	NextCursor string
	Boundary   Boundary
}

// NewPageResult builds a page result and derives its boundary.
func NewPageResult[R Record](desc PageDescriptor, records []R, next string) *PageResult[R] {
	return &PageResult[R]{
		Descriptor: desc,
		Records:    records,
		NextCursor: next,
		Boundary:   boundaryOf(records),
	}
}

func boundaryOf[R Record](records []R) Boundary {
	var b Boundary
	for i, r := range records {
		ts, ok := any(r).(Timestamped)
		if !ok {
			return Boundary{}
		}
		t := ts.Time()
		if i == 0 {
			b = Boundary{Oldest: t, Newest: t, HasTime: true}
		}
		if t < b.Oldest {
			b.Oldest = t
		}
		if t > b.Newest {
			b.Newest = t
		}
		b.Last = t
	}
	return b
}

// PageSource fetches a single page. Implementations wrap the request executor,
// so an error means the page stayed unavailable after retries.
type PageSource[R Record] interface {
	FetchPage(ctx context.Context, desc PageDescriptor) (*PageResult[R], error)
}

// SourceFunc adapts a function to PageSource.
type SourceFunc[R Record] func(ctx context.Context, desc PageDescriptor) (*PageResult[R], error)

// FetchPage implements PageSource.
func (f SourceFunc[R]) FetchPage(ctx context.Context, desc PageDescriptor) (*PageResult[R], error) {
	return f(ctx, desc)
}

// StopFunc ends discovery after the given page when it returns true.
type StopFunc[R Record] func(page *PageResult[R]) bool
