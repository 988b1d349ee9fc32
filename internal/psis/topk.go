package psis

import (
	"container/heap"
	"runtime"
	"sort"
	"sync"
)

// parallelThreshold is the fork-join cutoff spec.md §5 names for the top-N
// extraction: inputs at or below it run inline, larger ones are split
// across a bounded worker pool.
const parallelThreshold = 400

// entry pairs a log-weight with its original position.
type entry struct {
	val float64
	idx int
}

// minHeap is a bounded min-heap of entries, used to track the running top-k
// by value with O(log k) updates.
type minHeap []entry

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].val < h[j].val }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(entry)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topK returns, for lw of length S, the k largest values together with
// their original indices, sorted ascending by value. This resolves
// spec.md §9's Open Question: the original's re-scan loop
// (`for i in [tail_len_i, tail_len_i)`) can never execute, which looks
// like a leftover "scan the rest of the array" step that was never
// wired up; here the whole array is considered once via a straightforward
// partial top-k selection.
//
// When len(lw) exceeds parallelThreshold, the scan is forked across a
// bounded worker pool and merged, matching the fork-join behavior spec.md
// §5 describes for this step; each worker owns its own heap, so there is
// no shared mutable state across tasks.
func topK(lw []float64, k int) (values []float64, indices []int) {
	if k > len(lw) {
		k = len(lw)
	}
	if k <= 0 {
		return nil, nil
	}

	var h minHeap
	if len(lw) <= parallelThreshold {
		h = scanRange(lw, 0, len(lw), k)
	} else {
		h = scanParallel(lw, k)
	}

	sort.Sort(h) // ascending by value
	values = make([]float64, len(h))
	indices = make([]int, len(h))
	for i, e := range h {
		values[i] = e.val
		indices[i] = e.idx
	}
	return values, indices
}

func scanRange(lw []float64, lo, hi, k int) minHeap {
	h := make(minHeap, 0, k)
	for i := lo; i < hi; i++ {
		v := lw[i]
		if len(h) < k {
			heap.Push(&h, entry{v, i})
		} else if v > h[0].val {
			heap.Pop(&h)
			heap.Push(&h, entry{v, i})
		}
	}
	return h
}

func scanParallel(lw []float64, k int) minHeap {
	workers := runtime.GOMAXPROCS(0)
	if workers < 2 {
		workers = 2
	}
	n := len(lw)
	chunk := (n + workers - 1) / workers

	partials := make([]minHeap, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		if lo >= hi {
			continue
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			partials[w] = scanRange(lw, lo, hi, k)
		}(w, lo, hi)
	}
	wg.Wait()

	merged := make(minHeap, 0, k)
	for _, p := range partials {
		for _, e := range p {
			if len(merged) < k {
				heap.Push(&merged, e)
			} else if e.val > merged[0].val {
				heap.Pop(&merged)
				heap.Push(&merged, e)
			}
		}
	}
	return merged
}
