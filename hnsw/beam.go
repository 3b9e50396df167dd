package hnsw

import "container/heap"

// candidate pairs a slot with its distance to the current query, used by
// both the closer-first candidate heap and the farther-first result heap
// during beam search.
type candidate struct {
	slot uint32
	dist float32
}

// minHeap is a closer-first priority queue: pop returns the smallest
// distance. Used to drive beam expansion (visit the most promising
// unexpanded candidate next).
type minHeap []candidate

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// maxHeap is a farther-first priority queue: pop returns the largest
// distance. Used to hold the current best-ef results so the worst one can
// be evicted in O(log ef) when a closer candidate is found.
type maxHeap []candidate

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// searchLayer runs a bounded beam search within a single layer, starting
// from entryPoints, and returns up to ef candidates closest to the query,
// sorted closest-first. dist computes the distance from a slot to the
// query; neighbors returns the (possibly decompressed) neighbor slots of a
// given slot at this layer.
func searchLayer(
	query []float32,
	entryPoints []uint32,
	ef int,
	dist func(slot uint32) float32,
	neighbors func(slot uint32) []uint32,
) []candidate {
	visited := make(map[uint32]bool, ef*4)
	var candidates minHeap
	var results maxHeap

	for _, ep := range entryPoints {
		if visited[ep] {
			continue
		}
		visited[ep] = true
		d := dist(ep)
		heap.Push(&candidates, candidate{slot: ep, dist: d})
		heap.Push(&results, candidate{slot: ep, dist: d})
	}

	for candidates.Len() > 0 {
		best := heap.Pop(&candidates).(candidate)

		if results.Len() >= ef && best.dist > results[0].dist {
			break
		}

		for _, n := range neighbors(best.slot) {
			if visited[n] {
				continue
			}
			visited[n] = true
			d := dist(n)

			if results.Len() < ef {
				heap.Push(&candidates, candidate{slot: n, dist: d})
				heap.Push(&results, candidate{slot: n, dist: d})
			} else if d < results[0].dist {
				heap.Push(&candidates, candidate{slot: n, dist: d})
				heap.Push(&results, candidate{slot: n, dist: d})
				heap.Pop(&results)
			}
		}
	}

	out := make([]candidate, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&results).(candidate)
	}
	return out
}

// greedyDescend walks from entry toward the closest node to the query,
// following one neighbor hop at a time, until no neighbor improves on the
// current best. Used for the single-neighbor beam through the upper layers.
func greedyDescend(
	query []float32,
	entry uint32,
	dist func(slot uint32) float32,
	neighbors func(slot uint32) []uint32,
) uint32 {
	current := entry
	currentDist := dist(current)
	for {
		improved := false
		for _, n := range neighbors(current) {
			d := dist(n)
			if d < currentDist {
				current = n
				currentDist = d
				improved = true
			}
		}
		if !improved {
			return current
		}
	}
}
