package pq

import (
	"math/rand"
	"testing"
)

func randomBuf(r *rand.Rand, n, d int) []float32 {
	buf := make([]float32, n*d)
	for i := range buf {
		buf[i] = r.Float32()*2 - 1
	}
	return buf
}

func TestTrainEncodeDecodeRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	n, d := 600, 16
	buf := randomBuf(r, n, d)

	cfg := DefaultConfig()
	cfg.NumSubvectors = 4
	cfg.BitsPerCode = 4
	q := New(cfg)
	if err := q.Train(buf, n, d); err != nil {
		t.Fatalf("train: %v", err)
	}

	vec := buf[:d]
	codes := q.Encode(vec)
	if len(codes) != cfg.NumSubvectors {
		t.Fatalf("expected %d codes, got %d", cfg.NumSubvectors, len(codes))
	}
	decoded := q.Decode(codes)
	if len(decoded) != d {
		t.Fatalf("expected decoded dim %d, got %d", d, len(decoded))
	}
}

func TestAsymmetricDistanceMatchesSymmetricOrdering(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	n, d := 500, 8
	buf := randomBuf(r, n, d)

	cfg := DefaultConfig()
	cfg.NumSubvectors = 2
	cfg.BitsPerCode = 4
	q := New(cfg)
	if err := q.Train(buf, n, d); err != nil {
		t.Fatalf("train: %v", err)
	}

	query := buf[:d]
	table := q.ComputeDistanceTable(query)

	near := q.Encode(query)
	far := q.Encode(buf[d*2 : d*3])

	dNear := table.AsymmetricDistance(near)
	dFar := table.AsymmetricDistance(far)
	if dNear > dFar {
		t.Fatalf("expected exact-match code to score closer: near=%f far=%f", dNear, dFar)
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	n, d := 300, 8
	buf := randomBuf(r, n, d)

	cfg := DefaultConfig()
	cfg.NumSubvectors = 2
	cfg.BitsPerCode = 4
	q := New(cfg)
	if err := q.Train(buf, n, d); err != nil {
		t.Fatalf("train: %v", err)
	}

	data := q.Serialize()
	restored, err := Deserialize(data, cfg)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if restored.NumSubvectors() != q.NumSubvectors() || restored.SubvectorDim() != q.SubvectorDim() {
		t.Fatalf("shape mismatch after round trip")
	}
}

func TestScalarQuantizerRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	n, d := 50, 4
	buf := randomBuf(r, n, d)

	sq := NewScalarQuantizer()
	if err := sq.Train(buf, n, d); err != nil {
		t.Fatalf("train: %v", err)
	}

	vec := buf[:d]
	quantized := sq.Quantize(vec)
	dequantized := sq.Dequantize(quantized)
	for i := range vec {
		if diff := vec[i] - dequantized[i]; diff > 0.05 || diff < -0.05 {
			t.Fatalf("dequantized value drifted too far at %d: %f vs %f", i, vec[i], dequantized[i])
		}
	}
}

func TestOnlinePQUpdateAdaptsCentroid(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	n, d := 200, 8
	buf := randomBuf(r, n, d)

	oq, err := NewOnlinePQ(d, 2, 16, 0.5, 0.01)
	if err != nil {
		t.Fatalf("new online pq: %v", err)
	}
	if err := oq.Initialize(buf, n); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	vec := make([]float32, d)
	for i := range vec {
		vec[i] = 5.0
	}
	codes, err := oq.Update(vec)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(codes) != 2 {
		t.Fatalf("expected 2 codes, got %d", len(codes))
	}
}

func TestOnlinePQRejectsInvalidRates(t *testing.T) {
	if _, err := NewOnlinePQ(8, 2, 16, 0, 0); err == nil {
		t.Fatal("expected error for zero learning rate")
	}
	if _, err := NewOnlinePQ(8, 2, 16, 1.5, 0); err == nil {
		t.Fatal("expected error for learning rate > 1")
	}
}

func TestOPQTrainAndEncode(t *testing.T) {
	r := rand.New(rand.NewSource(6))
	n, d := 400, 8
	buf := randomBuf(r, n, d)

	cfg := DefaultConfig()
	cfg.NumSubvectors = 4
	cfg.BitsPerCode = 4
	opq := NewOPQ(d, cfg, 3)
	if err := opq.Train(buf, n, d); err != nil {
		t.Fatalf("train: %v", err)
	}

	codes := opq.Encode(buf[:d])
	if len(codes) != cfg.NumSubvectors {
		t.Fatalf("expected %d codes, got %d", cfg.NumSubvectors, len(codes))
	}
}
