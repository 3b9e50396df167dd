package flatnsw

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/nearkit/retrieve/errs"
	"github.com/nearkit/retrieve/hnsw"
)

// WriteTo serializes params, vectors, and the flat adjacency list — the
// same section split as the hierarchical graph, minus the per-node layer
// assignment section a single-layer graph has no use for.
func (idx *Index) WriteTo(w io.Writer) (int64, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(idx.dim))
	binary.Write(&buf, binary.LittleEndian, uint32(idx.cfg.M))
	binary.Write(&buf, binary.LittleEndian, uint32(idx.cfg.EfConstruction))
	binary.Write(&buf, binary.LittleEndian, uint32(idx.cfg.EfSearch))
	binary.Write(&buf, binary.LittleEndian, uint32(idx.cfg.CompressionThreshold))
	binary.Write(&buf, binary.LittleEndian, uint32(idx.cfg.Metric))

	binary.Write(&buf, binary.LittleEndian, uint32(len(idx.docIDs)))
	for _, id := range idx.docIDs {
		binary.Write(&buf, binary.LittleEndian, id)
	}
	for _, v := range idx.vectors {
		binary.Write(&buf, binary.LittleEndian, math.Float32bits(v))
	}

	for _, ns := range idx.neighbors {
		slots := ns.slots()
		binary.Write(&buf, binary.LittleEndian, uint32(len(slots)))
		for _, s := range slots {
			binary.Write(&buf, binary.LittleEndian, s)
		}
	}

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// ReadFrom reconstructs a flat graph from the layout WriteTo produces.
func ReadFrom(r io.Reader, cfg Config) (*Index, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.IO(err)
	}
	buf := bytes.NewReader(data)

	var dim, m, efc, efs, compThresh, metric uint32
	if err := binary.Read(buf, binary.LittleEndian, &dim); err != nil {
		return nil, errs.Deserialization(err)
	}
	binary.Read(buf, binary.LittleEndian, &m)
	binary.Read(buf, binary.LittleEndian, &efc)
	binary.Read(buf, binary.LittleEndian, &efs)
	binary.Read(buf, binary.LittleEndian, &compThresh)
	binary.Read(buf, binary.LittleEndian, &metric)

	cfg.M = int(m)
	cfg.EfConstruction = int(efc)
	cfg.EfSearch = int(efs)
	cfg.CompressionThreshold = int(compThresh)
	cfg.Metric = hnsw.Metric(metric)

	idx := New(int(dim), cfg)

	var numVectors uint32
	if err := binary.Read(buf, binary.LittleEndian, &numVectors); err != nil {
		return nil, errs.Deserialization(err)
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

	idx.neighbors = make([]*neighborSet, numVectors)
	for i := range idx.neighbors {
		var count uint32
		if err := binary.Read(buf, binary.LittleEndian, &count); err != nil {
			return nil, errs.Deserialization(err)
		}
		slots := make([]uint32, count)
		for j := range slots {
			binary.Read(buf, binary.LittleEndian, &slots[j])
		}
		idx.neighbors[i] = &neighborSet{plain: slots}
	}

	idx.built = true
	return idx, nil
}
