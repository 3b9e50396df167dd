package flatnsw

import "github.com/nearkit/retrieve/hnsw"

// insert wires a freshly-appended slot into the single flat graph: run a
// bounded beam search from a random existing entry, select up to M
// neighbors, install bidirectional edges, and re-prune any neighbor whose
// list overflows M.
func (idx *Index) insert(slot uint32) {
	if slot == 0 {
		return
	}

	vec := idx.vectorAt(slot)
	distTo := func(other uint32) float32 { return idx.dist(vec, idx.vectorAt(other)) }
	neighborsOf := func(s uint32) []uint32 { return idx.neighbors[s].slots() }

	entry := idx.rng.Uint32() % slot
	cands := hnsw.SearchLayer(vec, []uint32{entry}, idx.cfg.EfConstruction, distTo, neighborsOf)

	cap := idx.cfg.M
	if len(cands) > cap {
		cands = cands[:cap]
	}

	selected := make([]uint32, len(cands))
	for i, c := range cands {
		selected[i] = c.Slot()
	}
	idx.neighbors[slot].set(selected)

	for _, c := range cands {
		back := idx.neighbors[c.Slot()]
		merged := appendUnique(back.slots(), slot)
		if len(merged) > cap {
			merged = idx.prune(merged, idx.vectorAt(c.Slot()), cap)
		}
		back.set(merged)
	}
}

func (idx *Index) prune(slots []uint32, center []float32, cap int) []uint32 {
	type scored struct {
		slot uint32
		dist float32
	}
	ranked := make([]scored, len(slots))
	for i, s := range slots {
		ranked[i] = scored{slot: s, dist: idx.dist(center, idx.vectorAt(s))}
	}
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j-1].dist > ranked[j].dist; j-- {
			ranked[j-1], ranked[j] = ranked[j], ranked[j-1]
		}
	}
	if len(ranked) > cap {
		ranked = ranked[:cap]
	}
	out := make([]uint32, len(ranked))
	for i, r := range ranked {
		out[i] = r.slot
	}
	return out
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
