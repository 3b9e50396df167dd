package pq

import (
	"math"

	"github.com/nearkit/retrieve/errs"
)

// ScalarQuantizer is a supplementary adaptive quantizer: it maps each
// vector's float32 components linearly onto the int8 range, giving a flat
// 4x memory reduction with no codebook training. Parameters are fit once
// from a global min/max over the training set.
type ScalarQuantizer struct {
	min, max, scale, offset float32
}

func NewScalarQuantizer() *ScalarQuantizer { return &ScalarQuantizer{} }

// Train fits min/max/scale/offset from n vectors of dimension d packed in buf.
func (q *ScalarQuantizer) Train(buf []float32, n, d int) error {
	if n == 0 {
		return errs.EmptyQuery()
	}

	q.min = float32(math.MaxFloat32)
	q.max = -float32(math.MaxFloat32)
	for _, v := range buf[:n*d] {
		if v < q.min {
			q.min = v
		}
		if v > q.max {
			q.max = v
		}
	}

	valueRange := q.max - q.min
	if valueRange == 0 {
		valueRange = 1
	}
	q.scale = 254.0 / valueRange
	q.offset = -127.0 - q.min*q.scale
	return nil
}

// Quantize maps a vector onto int8 components, clamped to [-127, 127].
func (q *ScalarQuantizer) Quantize(vector []float32) []int8 {
	out := make([]int8, len(vector))
	for i, val := range vector {
		scaled := val*q.scale + q.offset
		if scaled < -127 {
			scaled = -127
		} else if scaled > 127 {
			scaled = 127
		}
		out[i] = int8(math.Round(float64(scaled)))
	}
	return out
}

// Dequantize reconstructs an approximate float32 vector.
func (q *ScalarQuantizer) Dequantize(quantized []int8) []float32 {
	out := make([]float32, len(quantized))
	for i, val := range quantized {
		out[i] = (float32(val) - q.offset) / q.scale
	}
	return out
}

// MemoryReduction is the fixed 4x ratio of float32 to int8 storage.
func (q *ScalarQuantizer) MemoryReduction() float32 { return 4.0 }

func (q *ScalarQuantizer) Parameters() (min, max, scale, offset float32) {
	return q.min, q.max, q.scale, q.offset
}

func (q *ScalarQuantizer) SetParameters(min, max, scale, offset float32) {
	q.min, q.max, q.scale, q.offset = min, max, scale, offset
}

// DistanceInt8 is an approximate Euclidean distance computed directly on
// quantized components, without dequantizing.
func DistanceInt8(a, b []int8) float32 {
	if len(a) != len(b) {
		return float32(math.MaxFloat32)
	}
	var sum int64
	for i := range a {
		diff := int64(a[i]) - int64(b[i])
		sum += diff * diff
	}
	return float32(math.Sqrt(float64(sum)))
}

// DotProductInt8 computes the dot product of two quantized vectors.
func DotProductInt8(a, b []int8) int64 {
	if len(a) != len(b) {
		return 0
	}
	var sum int64
	for i := range a {
		sum += int64(a[i]) * int64(b[i])
	}
	return sum
}
