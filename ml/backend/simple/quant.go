package simple

import (
	"fmt"
	"math"

	"github.com/weave-ml/weave/ml"
)

// Quantize implements affine quantization along the last axis: each group of
// groupSize elements is mapped to integers in [0, 2^bits) with a per-group
// scale and bias. The quantized payload is stored unpacked as I32; packing
// multiple elements per word is an engine concern, not a reference one.
func (c *context) Quantize(t ml.Tensor, groupSize, bits int) (wq, scales, biases ml.Tensor, err error) {
	u := unwrap(t)

	if !u.dtype.IsFloat() {
		return nil, nil, nil, fmt.Errorf("simple: cannot quantize %s tensor", u.dtype)
	}

	if len(u.shape) != 2 {
		return nil, nil, nil, fmt.Errorf("simple: cannot quantize shape %v, need 2 dimensions", u.shape)
	}

	switch bits {
	case 2, 4, 8:
	default:
		return nil, nil, nil, fmt.Errorf("simple: unsupported bit width %d", bits)
	}

	rows, cols := u.shape[0], u.shape[1]
	if groupSize <= 0 || cols%int64(groupSize) != 0 {
		return nil, nil, nil, fmt.Errorf("simple: group size %d does not divide %d columns", groupSize, cols)
	}

	groups := cols / int64(groupSize)
	maxQ := float64(int64(1)<<bits - 1)

	src := u.f64()
	q := make([]float64, len(src))
	sc := make([]float64, rows*groups)
	bs := make([]float64, rows*groups)

	for r := int64(0); r < rows; r++ {
		for g := int64(0); g < groups; g++ {
			off := r*cols + g*int64(groupSize)
			group := src[off : off+int64(groupSize)]

			lo, hi := group[0], group[0]
			for _, v := range group[1:] {
				lo = math.Min(lo, v)
				hi = math.Max(hi, v)
			}

			scale := (hi - lo) / maxQ
			sc[r*groups+g] = scale
			bs[r*groups+g] = lo

			for i, v := range group {
				if scale != 0 {
					q[off+int64(i)] = math.Min(maxQ, math.Max(0, math.Round((v-lo)/scale)))
				}
			}
		}
	}

	ctx := &context{b: u.b}
	return ctx.newTensor(ml.DTypeI32, []int64{rows, cols}, q),
		ctx.newTensor(ml.DTypeF32, []int64{rows, groups}, sc),
		ctx.newTensor(ml.DTypeF32, []int64{rows, groups}, bs),
		nil
}

func (c *context) Dequantize(wq, scales, biases ml.Tensor, groupSize, bits int) (ml.Tensor, error) {
	q := unwrap(wq)
	sc := unwrap(scales)
	bs := unwrap(biases)

	if len(q.shape) != 2 {
		return nil, fmt.Errorf("simple: cannot dequantize shape %v, need 2 dimensions", q.shape)
	}

	rows, cols := q.shape[0], q.shape[1]
	if groupSize <= 0 || cols%int64(groupSize) != 0 {
		return nil, fmt.Errorf("simple: group size %d does not divide %d columns", groupSize, cols)
	}

	groups := cols / int64(groupSize)
	if sc.NumElements() != rows*groups || bs.NumElements() != rows*groups {
		return nil, fmt.Errorf("simple: scales %v and biases %v do not match %d groups of %d rows",
			sc.shape, bs.shape, groups, rows)
	}

	src := q.f64()
	scale := sc.f64()
	bias := bs.f64()

	vals := make([]float64, len(src))
	for r := int64(0); r < rows; r++ {
		for j := int64(0); j < cols; j++ {
			g := r*groups + j/int64(groupSize)
			vals[r*cols+j] = src[r*cols+j]*scale[g] + bias[g]
		}
	}

	return (&context{b: q.b}).newTensor(ml.DTypeF32, []int64{rows, cols}, vals), nil
}
