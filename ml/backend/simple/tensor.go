package simple

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
	"gonum.org/v1/gonum/floats"

	"github.com/weave-ml/weave/ml"
)

type context struct {
	b *Backend
}

type tensor struct {
	b     *Backend
	dtype ml.DType
	shape []int64
	data  []byte // packed little-endian
}

func numElements(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}

	return n
}

func (c *context) newTensor(dtype ml.DType, shape []int64, vals []float64) *tensor {
	t := &tensor{b: c.b, dtype: dtype, shape: append([]int64(nil), shape...)}
	t.data = encode(dtype, vals)
	return t
}

func (c *context) Zeros(dtype ml.DType, shape ...int64) ml.Tensor {
	return &tensor{
		b:     c.b,
		dtype: dtype,
		shape: append([]int64(nil), shape...),
		data:  make([]byte, numElements(shape)*dtype.Size()),
	}
}

func (c *context) Ones(dtype ml.DType, shape ...int64) ml.Tensor {
	vals := make([]float64, numElements(shape))
	for i := range vals {
		vals[i] = 1
	}

	return c.newTensor(dtype, shape, vals)
}

func (c *context) FromFloatSlice(s []float32, shape ...int64) (ml.Tensor, error) {
	if int64(len(s)) != numElements(shape) {
		return nil, fmt.Errorf("simple: %d values do not fit shape %v", len(s), shape)
	}

	vals := make([]float64, len(s))
	for i, v := range s {
		vals[i] = float64(v)
	}

	return c.newTensor(ml.DTypeF32, shape, vals), nil
}

func (c *context) FromIntSlice(s []int32, shape ...int64) (ml.Tensor, error) {
	if int64(len(s)) != numElements(shape) {
		return nil, fmt.Errorf("simple: %d values do not fit shape %v", len(s), shape)
	}

	vals := make([]float64, len(s))
	for i, v := range s {
		vals[i] = float64(v)
	}

	return c.newTensor(ml.DTypeI32, shape, vals), nil
}

func (c *context) FromBytes(dtype ml.DType, data []byte, shape ...int64) (ml.Tensor, error) {
	if int64(len(data)) != numElements(shape)*dtype.Size() {
		return nil, fmt.Errorf("simple: %d bytes do not fit shape %v of %s", len(data), shape, dtype)
	}

	return &tensor{
		b:     c.b,
		dtype: dtype,
		shape: append([]int64(nil), shape...),
		data:  append([]byte(nil), data...),
	}, nil
}

func (c *context) Uniform(low, high float32, dtype ml.DType, shape ...int64) ml.Tensor {
	vals := make([]float64, numElements(shape))
	for i := range vals {
		vals[i] = c.b.rng.Float64()*float64(high-low) + float64(low)
	}

	return c.newTensor(dtype, shape, vals)
}

func (c *context) Bernoulli(p float32, shape ...int64) ml.Tensor {
	vals := make([]float64, numElements(shape))
	for i := range vals {
		if c.b.rng.Float64() < float64(p) {
			vals[i] = 1
		}
	}

	return c.newTensor(ml.DTypeF32, shape, vals)
}

// encode packs float64 values into the storage format of a dtype.
func encode(dtype ml.DType, vals []float64) []byte {
	switch dtype {
	case ml.DTypeF32:
		data := make([]byte, 4*len(vals))
		for i, v := range vals {
			binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(float32(v)))
		}
		return data
	case ml.DTypeF16:
		data := make([]byte, 2*len(vals))
		for i, v := range vals {
			binary.LittleEndian.PutUint16(data[2*i:], float16.Fromfloat32(float32(v)).Bits())
		}
		return data
	case ml.DTypeBF16:
		f32s := make([]float32, len(vals))
		for i, v := range vals {
			f32s[i] = float32(v)
		}
		return bfloat16.EncodeFloat32(f32s)
	case ml.DTypeI32:
		data := make([]byte, 4*len(vals))
		for i, v := range vals {
			binary.LittleEndian.PutUint32(data[4*i:], uint32(int32(math.Round(v))))
		}
		return data
	default:
		panic(fmt.Sprintf("simple: cannot encode dtype %s", dtype))
	}
}

// f64 unpacks the tensor into a float64 scratch slice.
func (t *tensor) f64() []float64 {
	n := numElements(t.shape)
	vals := make([]float64, n)

	switch t.dtype {
	case ml.DTypeF32:
		for i := range vals {
			vals[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(t.data[4*i:])))
		}
	case ml.DTypeF16:
		for i := range vals {
			vals[i] = float64(float16.Frombits(binary.LittleEndian.Uint16(t.data[2*i:])).Float32())
		}
	case ml.DTypeBF16:
		for i, v := range bfloat16.DecodeFloat32(t.data) {
			vals[i] = float64(v)
		}
	case ml.DTypeI32:
		for i := range vals {
			vals[i] = float64(int32(binary.LittleEndian.Uint32(t.data[4*i:])))
		}
	default:
		panic(fmt.Sprintf("simple: cannot decode dtype %s", t.dtype))
	}

	return vals
}

func (t *tensor) ints() []int32 {
	vals := t.f64()
	s := make([]int32, len(vals))
	for i, v := range vals {
		s[i] = int32(v)
	}

	return s
}

func (t *tensor) Context() ml.Context { return &context{b: t.b} }

func (t *tensor) Shape() []int64 { return append([]int64(nil), t.shape...) }

func (t *tensor) Dim(n int) int64 { return t.shape[n] }

func (t *tensor) DType() ml.DType { return t.dtype }

func (t *tensor) NumElements() int64 { return numElements(t.shape) }

func (t *tensor) Bytes() []byte { return append([]byte(nil), t.data...) }

func (t *tensor) Floats() []float32 {
	vals := t.f64()
	s := make([]float32, len(vals))
	for i, v := range vals {
		s[i] = float32(v)
	}

	return s
}

func unwrap(t ml.Tensor) *tensor {
	u, ok := t.(*tensor)
	if !ok {
		panic(fmt.Sprintf("simple: tensor from foreign backend %T", t))
	}

	return u
}

// binary applies op chunkwise, broadcasting t2 when its shape is a suffix of
// t's shape (covers bias adds and norm scaling) or a single element.
func (t *tensor) binary(t2 ml.Tensor, op func(dst, s []float64)) ml.Tensor {
	u := unwrap(t2)

	a, b := t.f64(), u.f64()
	switch {
	case len(b) == len(a):
		op(a, b)
	case len(b) == 1:
		s := make([]float64, len(a))
		for i := range s {
			s[i] = b[0]
		}
		op(a, s)
	case isSuffix(u.shape, t.shape) && len(b) > 0:
		for off := 0; off < len(a); off += len(b) {
			op(a[off:off+len(b)], b)
		}
	default:
		panic(fmt.Sprintf("simple: shapes %v and %v do not broadcast", t.shape, u.shape))
	}

	return (&context{b: t.b}).newTensor(t.dtype, t.shape, a)
}

func isSuffix(sub, shape []int64) bool {
	if len(sub) > len(shape) {
		return false
	}

	for i := range sub {
		if sub[len(sub)-1-i] != shape[len(shape)-1-i] {
			return false
		}
	}

	return true
}

func (t *tensor) Add(t2 ml.Tensor) ml.Tensor {
	return t.binary(t2, func(dst, s []float64) { floats.Add(dst, s) })
}

func (t *tensor) Sub(t2 ml.Tensor) ml.Tensor {
	return t.binary(t2, func(dst, s []float64) { floats.Sub(dst, s) })
}

func (t *tensor) Mul(t2 ml.Tensor) ml.Tensor {
	return t.binary(t2, func(dst, s []float64) { floats.Mul(dst, s) })
}

func (t *tensor) Div(t2 ml.Tensor) ml.Tensor {
	return t.binary(t2, func(dst, s []float64) { floats.Div(dst, s) })
}

func (t *tensor) Square() ml.Tensor {
	vals := t.f64()
	floats.Mul(vals, vals)
	return (&context{b: t.b}).newTensor(t.dtype, t.shape, vals)
}

func (t *tensor) Sqrt() ml.Tensor {
	vals := t.f64()
	for i, v := range vals {
		vals[i] = math.Sqrt(v)
	}

	return (&context{b: t.b}).newTensor(t.dtype, t.shape, vals)
}

func (t *tensor) Scale(s float64) ml.Tensor {
	vals := t.f64()
	floats.Scale(s, vals)
	return (&context{b: t.b}).newTensor(t.dtype, t.shape, vals)
}

func (t *tensor) Matmul(t2 ml.Tensor) ml.Tensor {
	u := unwrap(t2)
	if len(t.shape) != 2 || len(u.shape) != 2 || t.shape[1] != u.shape[0] {
		panic(fmt.Sprintf("simple: cannot matmul %v with %v", t.shape, u.shape))
	}

	m, k, n := t.shape[0], t.shape[1], u.shape[1]
	a, b := t.f64(), u.f64()

	vals := make([]float64, m*n)
	for i := int64(0); i < m; i++ {
		for l := int64(0); l < k; l++ {
			av := a[i*k+l]
			if av == 0 {
				continue
			}
			row := b[l*n : l*n+n]
			floats.AddScaled(vals[i*n:i*n+n], av, row)
		}
	}

	return (&context{b: t.b}).newTensor(t.dtype, []int64{m, n}, vals)
}

func (t *tensor) Transpose(axes ...int) ml.Tensor {
	nd := len(t.shape)
	if len(axes) == 0 {
		axes = make([]int, nd)
		for i := range axes {
			axes[i] = nd - 1 - i
		}
	}

	if len(axes) != nd {
		panic(fmt.Sprintf("simple: transpose axes %v do not match shape %v", axes, t.shape))
	}

	shape := make([]int64, nd)
	for i, ax := range axes {
		shape[i] = t.shape[ax]
	}

	srcStride := make([]int64, nd)
	stride := int64(1)
	for i := nd - 1; i >= 0; i-- {
		srcStride[i] = stride
		stride *= t.shape[i]
	}

	src := t.f64()
	vals := make([]float64, len(src))
	idx := make([]int64, nd)
	for i := range vals {
		var off int64
		for d := range idx {
			off += idx[d] * srcStride[axes[d]]
		}
		vals[i] = src[off]

		for d := nd - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
	}

	return (&context{b: t.b}).newTensor(t.dtype, shape, vals)
}

func (t *tensor) Rows(indices ml.Tensor) ml.Tensor {
	u := unwrap(indices)
	if len(t.shape) != 2 {
		panic(fmt.Sprintf("simple: rows requires a 2D table, got %v", t.shape))
	}

	cols := t.shape[1]
	src := t.f64()

	idx := u.ints()
	vals := make([]float64, int64(len(idx))*cols)
	for i, row := range idx {
		if int64(row) < 0 || int64(row) >= t.shape[0] {
			panic(fmt.Sprintf("simple: row index %d out of range [0, %d)", row, t.shape[0]))
		}
		copy(vals[int64(i)*cols:], src[int64(row)*cols:int64(row)*cols+cols])
	}

	shape := append(u.Shape(), cols)
	return (&context{b: t.b}).newTensor(t.dtype, shape, vals)
}

func (t *tensor) LayerNorm(weight, bias ml.Tensor, eps float32) ml.Tensor {
	vals := t.f64()
	d := int(t.shape[len(t.shape)-1])

	for off := 0; off < len(vals); off += d {
		row := vals[off : off+d]
		mean := floats.Sum(row) / float64(d)

		var variance float64
		for _, v := range row {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(d)

		inv := 1 / math.Sqrt(variance+float64(eps))
		for i, v := range row {
			row[i] = (v - mean) * inv
		}
	}

	var out ml.Tensor = (&context{b: t.b}).newTensor(t.dtype, t.shape, vals)
	if weight != nil {
		out = out.Mul(weight)
	}
	if bias != nil {
		out = out.Add(bias)
	}

	return out
}

func (t *tensor) RMSNorm(weight ml.Tensor, eps float32) ml.Tensor {
	vals := t.f64()
	d := int(t.shape[len(t.shape)-1])

	for off := 0; off < len(vals); off += d {
		row := vals[off : off+d]

		var ms float64
		for _, v := range row {
			ms += v * v
		}
		ms /= float64(d)

		inv := 1 / math.Sqrt(ms+float64(eps))
		for i, v := range row {
			row[i] = v * inv
		}
	}

	var out ml.Tensor = (&context{b: t.b}).newTensor(t.dtype, t.shape, vals)
	if weight != nil {
		out = out.Mul(weight)
	}

	return out
}

func (t *tensor) Cast(dtype ml.DType) ml.Tensor {
	if dtype == t.dtype {
		return t
	}

	return (&context{b: t.b}).newTensor(dtype, t.shape, t.f64())
}

func (t *tensor) Equal(t2 ml.Tensor) bool {
	u, ok := t2.(*tensor)
	if !ok {
		return false
	}

	if t.dtype != u.dtype || len(t.shape) != len(u.shape) {
		return false
	}

	for i := range t.shape {
		if t.shape[i] != u.shape[i] {
			return false
		}
	}

	return bytes.Equal(t.data, u.data)
}

func (t *tensor) String() string {
	return fmt.Sprintf("simple.Tensor(%s, %v)", t.dtype, t.shape)
}
