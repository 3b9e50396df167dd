package hnsw

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/nearkit/retrieve/errs"
)

// WriteTo serializes the graph as four logically separate streams
// concatenated in order — params, layer assignments, vectors, layers —
// matching the segment directory's params.bin / layer_assignments.bin /
// vectors.bin / layers.bin split. The persistence layer is responsible for
// writing each section to its own file; this method only owns the byte
// layout within a section.
func (idx *Index) WriteTo(w io.Writer) (int64, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var buf bytes.Buffer

	writeParams(&buf, idx)
	writeLayerAssignments(&buf, idx.nodeLevel)
	writeVectors(&buf, idx.docIDs, idx.vectors, idx.dim)
	writeLayers(&buf, idx.layers)

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

func writeParams(buf *bytes.Buffer, idx *Index) {
	binary.Write(buf, binary.LittleEndian, uint32(idx.dim))
	binary.Write(buf, binary.LittleEndian, uint32(idx.cfg.M))
	binary.Write(buf, binary.LittleEndian, uint32(idx.cfg.M0))
	binary.Write(buf, binary.LittleEndian, uint32(idx.cfg.EfConstruction))
	binary.Write(buf, binary.LittleEndian, uint32(idx.cfg.EfSearch))
	binary.Write(buf, binary.LittleEndian, uint32(idx.cfg.CompressionThreshold))
	binary.Write(buf, binary.LittleEndian, uint32(idx.cfg.Metric))
	binary.Write(buf, binary.LittleEndian, idx.entry)
	var entryFlag uint8
	if idx.hasEntry {
		entryFlag = 1
	}
	buf.WriteByte(entryFlag)
}

func writeLayerAssignments(buf *bytes.Buffer, levels []int) {
	binary.Write(buf, binary.LittleEndian, uint32(len(levels)))
	for _, l := range levels {
		buf.WriteByte(uint8(l))
	}
}

func writeVectors(buf *bytes.Buffer, docIDs []uint32, vectors []float32, dim int) {
	binary.Write(buf, binary.LittleEndian, uint32(len(docIDs)))
	binary.Write(buf, binary.LittleEndian, uint32(dim))
	for _, id := range docIDs {
		binary.Write(buf, binary.LittleEndian, id)
	}
	for _, v := range vectors {
		binary.Write(buf, binary.LittleEndian, math.Float32bits(v))
	}
}

func writeLayers(buf *bytes.Buffer, layers []*layer) {
	binary.Write(buf, binary.LittleEndian, uint32(len(layers)))
	for _, l := range layers {
		binary.Write(buf, binary.LittleEndian, uint32(len(l.neighbors)))
		for slot, nl := range l.neighbors {
			binary.Write(buf, binary.LittleEndian, slot)
			slots := nl.slots()
			binary.Write(buf, binary.LittleEndian, uint32(len(slots)))
			for _, s := range slots {
				binary.Write(buf, binary.LittleEndian, s)
			}
		}
	}
}

// ReadFrom reconstructs a graph from the byte layout WriteTo produces. Per
// the persistence contract for the hierarchical graph, layers are rebuilt
// in full from the stored neighbor lists rather than dropped: the
// reconstructed index is immediately searchable without a rebuild pass.
func ReadFrom(r io.Reader, cfg Config) (*Index, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.IO(err)
	}
	buf := bytes.NewReader(data)

	var dim, m, m0, efc, efs, compThresh, metric uint32
	if err := binary.Read(buf, binary.LittleEndian, &dim); err != nil {
		return nil, errs.Deserialization(err)
	}
	binary.Read(buf, binary.LittleEndian, &m)
	binary.Read(buf, binary.LittleEndian, &m0)
	binary.Read(buf, binary.LittleEndian, &efc)
	binary.Read(buf, binary.LittleEndian, &efs)
	binary.Read(buf, binary.LittleEndian, &compThresh)
	binary.Read(buf, binary.LittleEndian, &metric)
	var entry uint32
	binary.Read(buf, binary.LittleEndian, &entry)
	entryFlag, err := buf.ReadByte()
	if err != nil {
		return nil, errs.Deserialization(err)
	}

	cfg.M = int(m)
	cfg.M0 = int(m0)
	cfg.EfConstruction = int(efc)
	cfg.EfSearch = int(efs)
	cfg.CompressionThreshold = int(compThresh)
	cfg.Metric = Metric(metric)

	idx := New(int(dim), cfg)
	idx.entry = entry
	idx.hasEntry = entryFlag == 1

	var numLevels uint32
	if err := binary.Read(buf, binary.LittleEndian, &numLevels); err != nil {
		return nil, errs.Deserialization(err)
	}
	idx.nodeLevel = make([]int, numLevels)
	for i := range idx.nodeLevel {
		b, err := buf.ReadByte()
		if err != nil {
			return nil, errs.Deserialization(err)
		}
		idx.nodeLevel[i] = int(b)
	}

	var numVectors, vecDim uint32
	binary.Read(buf, binary.LittleEndian, &numVectors)
	binary.Read(buf, binary.LittleEndian, &vecDim)
	if int(vecDim) != idx.dim {
		return nil, errs.DimensionMismatch(idx.dim, int(vecDim))
	}
	idx.docIDs = make([]uint32, numVectors)
	for i := range idx.docIDs {
		binary.Read(buf, binary.LittleEndian, &idx.docIDs[i])
	}
	idx.vectors = make([]float32, int(numVectors)*idx.dim)
	for i := range idx.vectors {
		var bits uint32
		if err := binary.Read(buf, binary.LittleEndian, &bits); err != nil {
			return nil, errs.Deserialization(err)
		}
		idx.vectors[i] = math.Float32frombits(bits)
	}

	var numLayers uint32
	if err := binary.Read(buf, binary.LittleEndian, &numLayers); err != nil {
		return nil, errs.Deserialization(err)
	}
	idx.layers = make([]*layer, numLayers)
	for li := range idx.layers {
		l := newLayer()
		var numNodes uint32
		if err := binary.Read(buf, binary.LittleEndian, &numNodes); err != nil {
			return nil, errs.Deserialization(err)
		}
		for n := uint32(0); n < numNodes; n++ {
			var slot, count uint32
			binary.Read(buf, binary.LittleEndian, &slot)
			binary.Read(buf, binary.LittleEndian, &count)
			slots := make([]uint32, count)
			for i := range slots {
				binary.Read(buf, binary.LittleEndian, &slots[i])
			}
			l.ensure(slot).set(slots)
		}
		idx.layers[li] = l
	}

	idx.built = true
	return idx, nil
}
