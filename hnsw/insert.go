package hnsw

// insert runs the HNSW insertion protocol for a freshly-appended slot at
// the given sampled level:
//
//  1. If the graph is empty, the new slot becomes the entry point and
//     nothing else happens.
//  2. Greedily descend, one neighbor hop at a time, from the current entry
//     point down through every layer strictly above level, to find the
//     single closest node to enter level from.
//  3. At each layer from min(level, topLayer) down to 0, run a bounded beam
//     search (efConstruction) from the current nearest node(s), select up to
//     M (M0 at layer 0) neighbors from the candidates using the chosen
//     diversification policy (idx.cfg.Selection), and install bidirectional
//     edges. Any neighbor whose own list now exceeds its cap is re-pruned
//     back down to the cap using the same policy.
//  4. If level exceeds the current top layer, the new slot becomes the
//     entry point.
func (idx *Index) insert(slot uint32, level int) {
	if !idx.hasEntry {
		idx.entry = slot
		idx.hasEntry = true
		return
	}

	vec := idx.vectorAt(slot)
	distTo := func(other uint32) float32 { return idx.dist(vec, idx.vectorAt(other)) }

	topLayer := len(idx.layers) - 1
	current := idx.entry
	for l := topLayer; l > level; l-- {
		if l >= len(idx.layers) {
			continue
		}
		current = greedyDescend(vec, current, distTo, func(s uint32) []uint32 {
			return idx.layers[l].neighborsOf(s)
		})
	}

	entryPoints := []uint32{current}
	for l := min(level, topLayer); l >= 0; l-- {
		cands := searchLayer(vec, entryPoints, idx.cfg.EfConstruction, distTo, func(s uint32) []uint32 {
			return idx.layers[l].neighborsOf(s)
		})

		cap := idx.cfg.M
		if l == 0 {
			cap = idx.cfg.M0
		}
		selected := idx.selectNeighbors(cands, cap)

		nl := idx.layers[l].ensure(slot)
		sel := make([]uint32, len(selected))
		for i, c := range selected {
			sel[i] = c.slot
		}
		nl.set(sel)

		for _, c := range selected {
			back := idx.layers[l].ensure(c.slot)
			merged := appendUnique(back.slots(), slot)
			if len(merged) > cap {
				merged = idx.prune(merged, idx.vectorAt(c.slot), cap)
			}
			back.set(merged)
		}

		entryPoints = make([]uint32, len(cands))
		for i, c := range cands {
			entryPoints[i] = c.slot
		}
		if len(entryPoints) == 0 {
			entryPoints = []uint32{current}
		}
	}

	if level > topLayer {
		idx.entry = slot
	}
}

// selectNeighbors takes beam-search results (already sorted closest-first)
// and reduces them to cap neighbors, using whichever diversification
// policy idx.cfg.Selection names: SelectClosest just keeps the nearest
// cap candidates, SelectHeuristic runs the RNG-like occlusion check in
// selectNeighborsHeuristic.
func (idx *Index) selectNeighbors(cands []candidate, cap int) []candidate {
	if len(cands) <= cap {
		return cands
	}
	if idx.cfg.Selection == SelectHeuristic {
		return idx.selectNeighborsHeuristic(cands, cap)
	}
	return cands[:cap]
}

// selectNeighborsHeuristic walks candidates closest-first and keeps one
// only if no neighbor already selected lies closer to it than it lies to
// the node under consideration — that neighbor already "covers" the
// direction the candidate occupies, so admitting the candidate too would
// just add a redundant, non-diverse edge. Mirrors
// trees/diskann.go's selectNeighbors with alpha fixed at 1.
func (idx *Index) selectNeighborsHeuristic(cands []candidate, cap int) []candidate {
	selected := make([]candidate, 0, cap)
	for _, c := range cands {
		if len(selected) >= cap {
			break
		}
		useful := true
		for _, sel := range selected {
			if idx.dist(idx.vectorAt(c.slot), idx.vectorAt(sel.slot)) < c.dist {
				useful = false
				break
			}
		}
		if useful {
			selected = append(selected, c)
		}
	}
	return selected
}

// prune re-selects the closest cap neighbors of center from an overflowed
// neighbor set, using the index's configured diversification policy.
func (idx *Index) prune(slots []uint32, center []float32, cap int) []uint32 {
	cands := make([]candidate, len(slots))
	for i, s := range slots {
		cands[i] = candidate{slot: s, dist: idx.dist(center, idx.vectorAt(s))}
	}
	sortCandidates(cands)
	selected := idx.selectNeighbors(cands, cap)
	out := make([]uint32, len(selected))
	for i, c := range selected {
		out[i] = c.slot
	}
	return out
}

func sortCandidates(c []candidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j-1].dist > c[j].dist; j-- {
			c[j-1], c[j] = c[j], c[j-1]
		}
	}
}

func appendUnique(existing []uint32, slot uint32) []uint32 {
	for _, s := range existing {
		if s == slot {
			return existing
		}
	}
	out := make([]uint32, len(existing), len(existing)+1)
	copy(out, existing)
	return append(out, slot)
}
