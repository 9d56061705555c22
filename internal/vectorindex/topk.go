package vectorindex

import (
	"container/heap"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/errors"
)

// collector keeps the best k hits seen so far in a min-heap whose root is
// the weakest hit.
type collector struct {
	k int
	h hitHeap
}

func newCollector(k int) (*collector, error) {
	if k <= 0 {
		return nil, apperrors.Newf("query", apperrors.ErrInvalidInput, "top_k must be positive, got %d", k)
	}
	return &collector{k: k, h: make(hitHeap, 0, k+1)}, nil
}

func (c *collector) push(hit Hit) {
	if len(c.h) == c.k && !better(hit, c.h[0]) {
		return
	}
	heap.Push(&c.h, hit)
	if len(c.h) > c.k {
		heap.Pop(&c.h)
	}
}

// results drains the heap best first.
func (c *collector) results() []Hit {
	out := make([]Hit, len(c.h))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&c.h).(Hit)
	}
	return out
}

// better orders by descending score, then ascending ID.
func better(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID < b.ID
}

// SortHits orders hits by descending score, ties by ascending ID.
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool { return better(hits[i], hits[j]) })
}

type hitHeap []Hit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *hitHeap) Push(x interface{}) {
	*h = append(*h, x.(Hit))
}

func (h *hitHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
