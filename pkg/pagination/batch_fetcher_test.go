package pagination

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func descriptorsFor(n int) []PageDescriptor {
	descs := make([]PageDescriptor, n)
	for i := range descs {
		descs[i] = PageDescriptor{Resource: "token", Cursor: cursorFor(i), Index: i}
	}
	return descs
}

func TestBatchFetcher_FetchAll(t *testing.T) {
	s := newChainSource(50, 50, 50)
	bf := NewBatchFetcher[testRecord](s, DefaultConfig())

	pages := bf.FetchAll(context.Background(), descriptorsFor(3), 5)

	require.Len(t, pages, 3)
	indexes := make([]int, 0, 3)
	for _, p := range pages {
		indexes = append(indexes, p.Descriptor.Index)
		assert.Len(t, p.Records, 50)
	}
	sort.Ints(indexes)
	assert.Equal(t, []int{0, 1, 2}, indexes)
}

func TestBatchFetcher_RespectsMaxWorkers(t *testing.T) {
	for _, workers := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			s := newChainSource(make([]int, 20)...)
			for i := range s.pages {
				s.pages[i] = []testRecord{{ID: cursorFor(i) + "-x", TS: 1}}
			}
			s.delay = 20 * time.Millisecond

			pages := NewBatchFetcher[testRecord](s, DefaultConfig()).FetchAll(context.Background(), descriptorsFor(20), workers)

			assert.Len(t, pages, 20)
			assert.LessOrEqual(t, int(s.peak.Load()), workers)
			if workers > 1 {
				assert.Greater(t, int(s.peak.Load()), 1, "pool should run fetches in parallel")
			}
		})
	}
}

func TestBatchFetcher_DefaultWorkers(t *testing.T) {
	s := newChainSource(make([]int, 12)...)
	s.delay = 20 * time.Millisecond

	NewBatchFetcher[testRecord](s, Config{}).FetchAll(context.Background(), descriptorsFor(12), 0)

	assert.LessOrEqual(t, int(s.peak.Load()), 5)
}

func TestBatchFetcher_DropsFailedPages(t *testing.T) {
	s := newChainSource(50, 50, 50)
	s.fail = func(page, _ int) bool { return page == 1 }

	pages := NewBatchFetcher[testRecord](s, DefaultConfig()).FetchAll(context.Background(), descriptorsFor(3), 5)

	require.Len(t, pages, 2)
	for _, p := range pages {
		assert.NotEqual(t, 1, p.Descriptor.Index)
	}
	assert.Equal(t, 1, s.callsFor("c1"), "a failed page is not fetched again")
}

func TestBatchFetcher_EachDescriptorOnce(t *testing.T) {
	s := newChainSource(1, 1, 1, 1)
	descs := append(descriptorsFor(4), descriptorsFor(4)...)

	pages := NewBatchFetcher[testRecord](s, DefaultConfig()).FetchAll(context.Background(), descs, 3)

	assert.Len(t, pages, 4)
	for i := 0; i < 4; i++ {
		assert.Equal(t, 1, s.callsFor(cursorFor(i)))
	}
}

func TestBatchFetcher_Empty(t *testing.T) {
	s := newChainSource(1)
	pages := NewBatchFetcher[testRecord](s, DefaultConfig()).FetchAll(context.Background(), nil, 5)
	assert.Empty(t, pages)
	assert.Equal(t, 0, s.totalCalls())
}

func TestBatchFetcher_Cancelled(t *testing.T) {
	s := newChainSource(make([]int, 30)...)
	s.delay = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	start := time.Now()
	pages := NewBatchFetcher[testRecord](s, DefaultConfig()).FetchAll(ctx, descriptorsFor(30), 2)

	assert.Less(t, len(pages), 30)
	assert.Less(t, time.Since(start), time.Second)
}

func TestBatchFetcher_StreamSinkSeesEveryPage(t *testing.T) {
	s := newChainSource(3, 3, 3, 3, 3)
	seen := map[int]bool{}

	n := NewBatchFetcher[testRecord](s, DefaultConfig()).Stream(context.Background(), descriptorsFor(5), 2,
		func(p *PageResult[testRecord]) {
			seen[p.Descriptor.Index] = true
		})

	assert.Equal(t, 5, n)
	assert.Len(t, seen, 5)
}
