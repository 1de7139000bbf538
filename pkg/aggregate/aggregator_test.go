package aggregate

import (
	"fmt"
	"sync"
	"testing"

	"github.com/Sternrassler/gmgn-scan/pkg/pagination"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trade struct {
	Hash  string
	Maker string
	Event string
	TS    int64
	USD   decimal.Decimal
}

func (t trade) Key() string { return t.Hash }
func (t trade) Time() int64 { return t.TS }

func maker(t trade) string { return t.Maker }
func event(t trade) string { return t.Event }

func page(records ...trade) *pagination.PageResult[trade] {
	return pagination.NewPageResult(pagination.PageDescriptor{Resource: "token"}, records, "")
}

func TestAggregator_DedupAndActors(t *testing.T) {
	agg := New[trade](nil, maker)
	agg.Add(page(
		trade{Hash: "0x1", Maker: "alice"},
		trade{Hash: "0x2", Maker: "bob"},
		trade{Hash: "0x1", Maker: "alice"},
		trade{Hash: "0x3", Maker: "alice"},
	))

	res := agg.Result()
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 2, res.DistinctActors)
	assert.Equal(t, []string{"alice", "bob"}, res.Actors)
}

func TestMerge_Idempotent(t *testing.T) {
	p := page(trade{Hash: "0x1", Maker: "a"}, trade{Hash: "0x2", Maker: "b"})

	once := Merge([]*pagination.PageResult[trade]{p}, nil, maker)
	twice := Merge([]*pagination.PageResult[trade]{p, p}, nil, maker)

	assert.Equal(t, once.Records, twice.Records)
	assert.Equal(t, once.Total, twice.Total)
	assert.Equal(t, once.Actors, twice.Actors)
	assert.Equal(t, 2, twice.Duplicates)
}

func TestAggregator_Malformed(t *testing.T) {
	agg := New[trade](nil, maker)
	agg.AddRecords([]trade{{Hash: "", Maker: "x"}, {Hash: "0x1", Maker: "y"}})

	res := agg.Result()
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Malformed)
	assert.Equal(t, []string{"y"}, res.Actors)
}

type panicky struct{ ok bool }

func (p panicky) Key() string {
	if !p.ok {
		panic("missing field")
	}
	return "k"
}

func TestAggregator_PanickingKeyIsMalformed(t *testing.T) {
	agg := New[panicky](nil, nil)
	require.NotPanics(t, func() {
		agg.AddRecords([]panicky{{ok: false}, {ok: true}})
	})
	res := agg.Result()
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Malformed)
}

func TestAggregator_FilteredRecordDoesNotHideLaterOne(t *testing.T) {
	agg := New(EventIs[trade]("buy", event), maker)
	agg.AddRecords([]trade{
		{Hash: "0x1", Maker: "a", Event: "sell"},
		{Hash: "0x1", Maker: "a", Event: "buy"},
	})

	res := agg.Result()
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Filtered)
	assert.Equal(t, 0, res.Duplicates)
}

func TestAggregator_WindowInclusive(t *testing.T) {
	records := []trade{
		{Hash: "a", TS: 99},
		{Hash: "b", TS: 100},
		{Hash: "c", TS: 150},
		{Hash: "d", TS: 200},
		{Hash: "e", TS: 201},
	}

	res := Merge([]*pagination.PageResult[trade]{page(records...)}, InWindow[trade](100, 200), nil)

	got := make([]string, 0, len(res.Records))
	for _, r := range res.Records {
		got = append(got, r.Hash)
	}
	assert.Equal(t, []string{"b", "c", "d"}, got)
	assert.Equal(t, 2, res.Filtered)
}

func TestAggregator_Limit(t *testing.T) {
	agg := New[trade](nil, nil).WithLimit(2)
	agg.AddRecords([]trade{{Hash: "1"}, {Hash: "2"}, {Hash: "3"}})

	assert.Equal(t, 2, agg.Len())
}

func TestAggregator_ConcurrentAdds(t *testing.T) {
	agg := New[trade](nil, maker)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				// every worker submits the same 100 hashes
				agg.AddRecords([]trade{{Hash: fmt.Sprintf("0x%d", i), Maker: fmt.Sprintf("m%d", i%10)}})
			}
		}(w)
	}
	wg.Wait()

	res := agg.Result()
	assert.Equal(t, 100, res.Total)
	assert.Equal(t, 700, res.Duplicates)
	assert.Equal(t, 10, res.DistinctActors)
}

func TestSortBy(t *testing.T) {
	records := []trade{{Hash: "a", TS: 2}, {Hash: "b", TS: 3}, {Hash: "c", TS: 1}, {Hash: "d", TS: 3}}

	SortBy(records, func(t trade) int64 { return t.TS }, true)
	assert.Equal(t, []string{"b", "d", "a", "c"}, []string{records[0].Hash, records[1].Hash, records[2].Hash, records[3].Hash})

	SortBy(records, func(t trade) int64 { return t.TS }, false)
	assert.Equal(t, "c", records[0].Hash)
}
