package ivfpq

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/nearkit/retrieve/errs"
	"github.com/nearkit/retrieve/kmeans"
	"github.com/nearkit/retrieve/pq"
)

// WriteTo serializes centroids, the residual quantizer, and every posting
// list in turn.
func (idx *Index) WriteTo(w io.Writer) (int64, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(idx.dim))
	binary.Write(&buf, binary.LittleEndian, uint32(idx.cfg.NumCentroids))
	binary.Write(&buf, binary.LittleEndian, uint32(idx.cfg.NProbe))
	binary.Write(&buf, binary.LittleEndian, uint32(idx.cfg.Metric))

	for _, c := range idx.centroids {
		for _, v := range c {
			binary.Write(&buf, binary.LittleEndian, math.Float32bits(v))
		}
	}

	quantBytes := idx.quantizer.Serialize()
	binary.Write(&buf, binary.LittleEndian, uint32(len(quantBytes)))
	buf.Write(quantBytes)

	binary.Write(&buf, binary.LittleEndian, uint32(len(idx.postings)))
	for _, p := range idx.postings {
		binary.Write(&buf, binary.LittleEndian, uint32(len(p.ids)))
		for _, id := range p.ids {
			binary.Write(&buf, binary.LittleEndian, id)
		}
		for _, code := range p.codes {
			binary.Write(&buf, binary.LittleEndian, uint32(len(code)))
			buf.Write(code)
		}
	}

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// ReadFrom reconstructs an index from the layout WriteTo produces.
func ReadFrom(r io.Reader, pqCfg pq.Config) (*Index, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.IO(err)
	}
	buf := bytes.NewReader(data)

	var dim, numCentroids, nprobe, metric uint32
	if err := binary.Read(buf, binary.LittleEndian, &dim); err != nil {
		return nil, errs.Deserialization(err)
	}
	binary.Read(buf, binary.LittleEndian, &numCentroids)
	binary.Read(buf, binary.LittleEndian, &nprobe)
	binary.Read(buf, binary.LittleEndian, &metric)

	cfg := Config{
		NumCentroids: int(numCentroids),
		NProbe:       int(nprobe),
		Metric:       kmeans.Metric(metric),
		PQ:           pqCfg,
	}
	idx := &Index{cfg: cfg, dim: int(dim)}

	idx.centroids = make([][]float32, numCentroids)
	for i := range idx.centroids {
		idx.centroids[i] = make([]float32, dim)
		for j := range idx.centroids[i] {
			var bits uint32
			if err := binary.Read(buf, binary.LittleEndian, &bits); err != nil {
				return nil, errs.Deserialization(err)
			}
			idx.centroids[i][j] = math.Float32frombits(bits)
		}
	}

	var quantLen uint32
	if err := binary.Read(buf, binary.LittleEndian, &quantLen); err != nil {
		return nil, errs.Deserialization(err)
	}
	quantBytes := make([]byte, quantLen)
	if _, err := io.ReadFull(buf, quantBytes); err != nil {
		return nil, errs.Deserialization(err)
	}
	quantizer, err := pq.Deserialize(quantBytes, pqCfg)
	if err != nil {
		return nil, err
	}
	idx.quantizer = quantizer

	var numPostings uint32
	if err := binary.Read(buf, binary.LittleEndian, &numPostings); err != nil {
		return nil, errs.Deserialization(err)
	}
	idx.postings = make([]posting, numPostings)
	for i := range idx.postings {
		var count uint32
		if err := binary.Read(buf, binary.LittleEndian, &count); err != nil {
			return nil, errs.Deserialization(err)
		}
		ids := make([]uint32, count)
		for j := range ids {
			binary.Read(buf, binary.LittleEndian, &ids[j])
		}
		codes := make([][]byte, count)
		for j := range codes {
			var codeLen uint32
			if err := binary.Read(buf, binary.LittleEndian, &codeLen); err != nil {
				return nil, errs.Deserialization(err)
			}
			code := make([]byte, codeLen)
			if _, err := io.ReadFull(buf, code); err != nil {
				return nil, errs.Deserialization(err)
			}
			codes[j] = code
		}
		idx.postings[i] = posting{ids: ids, codes: codes}
	}

	idx.built = true
	return idx, nil
}
