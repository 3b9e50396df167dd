package trees

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/nearkit/retrieve/ann"
	"github.com/nearkit/retrieve/errs"
	"github.com/nearkit/retrieve/kernel"
)

// DiskANNConfig tunes the Vamana-style graph build.
type DiskANNConfig struct {
	R           int     // max out-degree per node after pruning
	L           int     // candidate list size used during construction and search
	Alpha       float64 // RNG pruning threshold; >1 keeps more diverse (farther) neighbors
	MedoidSamples int   // random sample size used to approximate the medoid
}

func DefaultDiskANNConfig() DiskANNConfig {
	return DiskANNConfig{R: 64, L: 100, Alpha: 1.2, MedoidSamples: 1000}
}

type diskANNCandidate struct {
	slot uint32
	dist float32
}

// diskANNNode is a single vertex of the Vamana graph: a slot into the
// shared vector store plus its current out-edges.
type diskANNNode struct {
	neighbors []uint32
}

// DiskANN is an in-memory stand-in for a disk-resident Vamana graph: a
// single-layer proximity graph built by repeated greedy-search-then-prune
// passes from an approximate medoid entry point, searched with the same
// greedy walk used at build time.
//
// TODO: a production disk-backed index pages node adjacency lists and PQ
// codes from SSD on demand (see the teacher's DiskGraph/MemoryGraph split)
// and keeps only a small "memory graph" of medoid-adjacent nodes resident;
// this stub keeps every node resident instead, trading SSD-scale capacity
// for a far simpler contract.
// TODO: construction here stores full float32 vectors rather than PQ codes,
// so the asymmetric PQ-distance search the disk-resident design relies on
// (pq.AsymmetricDistance) is not exercised by this baseline; the "pq"
// package is wired in by ivfpq instead.
type DiskANN struct {
	store
	cfg        DiskANNConfig
	nodes      []diskANNNode
	entryPoint uint32
	dist       func(a, b []float32) float32
}

func NewDiskANN(dim int, cfg DiskANNConfig) *DiskANN {
	if cfg.R == 0 {
		cfg = DefaultDiskANNConfig()
	}
	return &DiskANN{store: store{dim: dim}, cfg: cfg, dist: kernel.L2}
}

func (t *DiskANN) Add(docID uint32, vector []float32) error { return t.store.add(docID, vector) }
func (t *DiskANN) Dimension() int                           { return t.dim }
func (t *DiskANN) NumVectors() int                          { return t.numVectors() }
func (t *DiskANN) SizeBytes() int64 {
	return t.sizeBytes() + int64(len(t.nodes))*int64(t.cfg.R)*4
}
func (t *DiskANN) Stats() ann.Stats {
	return ann.Stats{NumVectors: t.NumVectors(), Dimension: t.dim, SizeBytes: t.SizeBytes(), AlgorithmName: "diskann"}
}

// Build runs the Vamana construction: find an approximate medoid entry
// point, then for every node run a greedy search from the entry point,
// prune the visited set down to R diverse neighbors, and add the
// corresponding reverse edges (pruning the far endpoint if it now exceeds
// R). A second pass over all nodes converges the graph the way the
// teacher's build does.
func (t *DiskANN) Build() (err error) {
	start := time.Now()
	defer func() { recordBuild("diskann", start, err) }()
	n := t.numVectors()
	if n == 0 {
		return errs.EmptyIndex()
	}
	t.nodes = make([]diskANNNode, n)
	t.entryPoint = t.findMedoid()

	for pass := 0; pass < 2; pass++ {
		for slot := uint32(0); slot < uint32(n); slot++ {
			candidates := t.greedySearch(t.vectorAt(slot), t.cfg.L, t.entryPoint)
			neighbors := t.selectNeighbors(candidates, t.cfg.R)
			t.nodes[slot].neighbors = neighbors
			for _, nb := range neighbors {
				t.addReverseEdge(nb, slot)
			}
		}
	}
	t.built = true
	return nil
}

// findMedoid approximates the dataset medoid by sampling up to
// cfg.MedoidSamples random points and picking the resident vector with the
// smallest average distance to the sample.
func (t *DiskANN) findMedoid() uint32 {
	n := t.numVectors()
	sampleSize := n
	if t.cfg.MedoidSamples < sampleSize {
		sampleSize = t.cfg.MedoidSamples
	}
	samples := make([]uint32, sampleSize)
	for i := range samples {
		samples[i] = uint32(rand.Intn(n))
	}

	best := uint32(0)
	bestAvg := float32(math.Inf(1))
	for slot := uint32(0); slot < uint32(n); slot++ {
		v := t.vectorAt(slot)
		var total float32
		for _, s := range samples {
			total += t.dist(v, t.vectorAt(s))
		}
		avg := total / float32(sampleSize)
		if avg < bestAvg {
			bestAvg = avg
			best = slot
		}
	}
	return best
}

// greedySearch walks the graph from entry, at each step following the
// unvisited neighbor closest to query, until L candidates have been
// gathered or the frontier is exhausted.
func (t *DiskANN) greedySearch(query []float32, l int, entry uint32) []diskANNCandidate {
	visited := make(map[uint32]bool)
	candidates := make([]diskANNCandidate, 0, l)

	candidates = append(candidates, diskANNCandidate{slot: entry, dist: t.dist(query, t.vectorAt(entry))})
	visited[entry] = true

	for len(candidates) < l {
		bestDist := float32(math.Inf(1))
		var bestSlot uint32
		found := false

		for _, c := range candidates {
			for _, nb := range t.nodes[c.slot].neighbors {
				if visited[nb] {
					continue
				}
				d := t.dist(query, t.vectorAt(nb))
				if d < bestDist {
					bestDist = d
					bestSlot = nb
					found = true
				}
			}
		}
		if !found {
			break
		}
		candidates = append(candidates, diskANNCandidate{slot: bestSlot, dist: bestDist})
		visited[bestSlot] = true
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
	return candidates
}

// selectNeighbors applies the RNG (relative neighborhood graph) pruning
// heuristic: a candidate is dropped if some already-selected neighbor lies
// closer to it than alpha times its distance to the query, since that
// selected neighbor already "covers" the direction the candidate occupies.
func (t *DiskANN) selectNeighbors(candidates []diskANNCandidate, r int) []uint32 {
	if len(candidates) <= r {
		out := make([]uint32, len(candidates))
		for i, c := range candidates {
			out[i] = c.slot
		}
		return out
	}

	selected := make([]uint32, 0, r)
	for _, c := range candidates {
		if len(selected) >= r {
			break
		}
		useful := true
		for _, sel := range selected {
			if t.dist(t.vectorAt(c.slot), t.vectorAt(sel)) < c.dist*float32(t.cfg.Alpha) {
				useful = false
				break
			}
		}
		if useful {
			selected = append(selected, c.slot)
		}
	}
	return selected
}

func (t *DiskANN) addReverseEdge(from, to uint32) {
	node := &t.nodes[from]
	for _, nb := range node.neighbors {
		if nb == to {
			return
		}
	}
	node.neighbors = append(node.neighbors, to)
	if len(node.neighbors) > t.cfg.R {
		t.pruneNeighbors(from)
	}
}

func (t *DiskANN) pruneNeighbors(slot uint32) {
	node := &t.nodes[slot]
	candidates := make([]diskANNCandidate, len(node.neighbors))
	for i, nb := range node.neighbors {
		candidates[i] = diskANNCandidate{slot: nb, dist: t.dist(t.vectorAt(slot), t.vectorAt(nb))}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
	node.neighbors = t.selectNeighbors(candidates, t.cfg.R)
}

// Search greedily walks the graph from the entry point, gathering a
// candidate list of size max(k, cfg.L), then re-ranks by exact distance —
// the same final step every tree baseline in this package shares.
func (t *DiskANN) Search(query []float32, k int) (result []ann.Neighbor, err error) {
	start := time.Now()
	defer func() {
		if err == nil {
			recordSearch("diskann", start, len(result))
		}
	}()
	if !t.built {
		return nil, errs.NotBuilt("call Build before Search")
	}
	if len(query) != t.dim {
		return nil, errs.DimensionMismatch(t.dim, len(query))
	}
	l := t.cfg.L
	if k > l {
		l = k
	}
	candidates := t.greedySearch(query, l, t.entryPoint)
	slots := make([]uint32, len(candidates))
	for i, c := range candidates {
		slots[i] = c.slot
	}
	return t.rerank(query, slots, k, t.dist), nil
}
