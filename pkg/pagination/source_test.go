package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type testRecord struct {
	ID string
	TS int64
}

func (r testRecord) Key() string { return r.ID }
func (r testRecord) Time() int64 { return r.TS }

var errUnavailable = errors.New("page unavailable")

// chainSource serves pages linked by cursors "", "c1", "c2", ...
type chainSource struct {
	pages [][]testRecord

	// next overrides the cursor returned for page i when set.
	next map[int]string

	// fail decides whether the n-th fetch (1-based) of page i fails.
	fail func(page, call int) bool

	delay time.Duration

	mu       sync.Mutex
	calls    map[string]int
	inFlight atomic.Int32
	peak     atomic.Int32
}

func newChainSource(pageSizes ...int) *chainSource {
	s := &chainSource{calls: make(map[string]int)}
	ts := int64(10_000)
	for i, n := range pageSizes {
		page := make([]testRecord, n)
		for j := range page {
			page[j] = testRecord{ID: fmt.Sprintf("tx-%d-%d", i, j), TS: ts}
			ts--
		}
		s.pages = append(s.pages, page)
	}
	return s
}

func cursorFor(i int) string {
	if i == 0 {
		return ""
	}
	return fmt.Sprintf("c%d", i)
}

func (s *chainSource) indexOf(cursor string) int {
	for i := range s.pages {
		if cursorFor(i) == cursor {
			return i
		}
	}
	return -1
}

func (s *chainSource) FetchPage(ctx context.Context, desc PageDescriptor) (*PageResult[testRecord], error) {
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		peak := s.peak.Load()
		if cur <= peak || s.peak.CompareAndSwap(peak, cur) {
			break
		}
	}

	s.mu.Lock()
	s.calls[desc.Cursor]++
	call := s.calls[desc.Cursor]
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	i := s.indexOf(desc.Cursor)
	if i < 0 {
		return nil, fmt.Errorf("unknown cursor %q", desc.Cursor)
	}
	if s.fail != nil && s.fail(i, call) {
		return nil, errUnavailable
	}

	next := ""
	if i+1 < len(s.pages) {
		next = cursorFor(i + 1)
	}
	if override, ok := s.next[i]; ok {
		next = override
	}
	return NewPageResult(desc, s.pages[i], next), nil
}

func (s *chainSource) callsFor(cursor string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[cursor]
}

func (s *chainSource) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}
