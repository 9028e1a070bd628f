package flat

import (
	"container/heap"
	"slices"

	"github.com/papercomputeco/simstore/pkg/vector"
)

// candidate is a scored row of the corpus.
type candidate struct {
	index int
	score float32
}

// ranks reports whether a ranks strictly before b: better score first, then
// lower insertion index.
func ranks(m vector.Metric, a, b candidate) bool {
	if a.score != b.score {
		return m.Better(a.score, b.score)
	}
	return a.index < b.index
}

// topK keeps the k best candidates seen so far. The heap root is the worst
// kept candidate.
type topK struct {
	metric vector.Metric
	k      int
	items  []candidate
}

// newTopK allocates room for min(k, rows) candidates.
func newTopK(m vector.Metric, k, rows int) *topK {
	return &topK{metric: m, k: k, items: make([]candidate, 0, min(k, rows))}
}

func (t *topK) Len() int           { return len(t.items) }
func (t *topK) Less(i, j int) bool { return ranks(t.metric, t.items[j], t.items[i]) }
func (t *topK) Swap(i, j int)      { t.items[i], t.items[j] = t.items[j], t.items[i] }
func (t *topK) Push(x any)         { t.items = append(t.items, x.(candidate)) }
func (t *topK) Pop() any {
	old := t.items
	n := len(old)
	c := old[n-1]
	t.items = old[:n-1]
	return c
}

func (t *topK) offer(c candidate) {
	if len(t.items) < t.k {
		heap.Push(t, c)
		return
	}
	if ranks(t.metric, c, t.items[0]) {
		t.items[0] = c
		heap.Fix(t, 0)
	}
}

// merge combines partial top-k lists into the global top-k, best first.
// The result does not depend on the order of partials.
func merge(m vector.Metric, k int, partials [][]candidate) []candidate {
	total := 0
	for _, p := range partials {
		total += len(p)
	}
	all := make([]candidate, 0, total)
	for _, p := range partials {
		all = append(all, p...)
	}
	slices.SortFunc(all, func(a, b candidate) int {
		switch {
		case ranks(m, a, b):
			return -1
		case ranks(m, b, a):
			return 1
		default:
			return 0
		}
	})
	if len(all) > k {
		all = all[:k]
	}
	return all
}
