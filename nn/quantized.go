package nn

import "github.com/weave-ml/weave/ml"

// QuantizedLinear is a Linear whose weight is stored affine-quantized with
// per-group scales and biases, dequantized on the forward pass. Its
// parameters are frozen on construction: quantized integers cannot take
// gradient updates.
type QuantizedLinear struct {
	Base

	Weight ml.Tensor
	Scales ml.Tensor
	Biases ml.Tensor
	Bias   ml.Tensor

	GroupSize int
	Bits      int
}

func NewQuantizedLinear(ctx ml.Context, l *Linear, groupSize, bits int) (*QuantizedLinear, error) {
	wq, scales, biases, err := ctx.Quantize(l.Weight, groupSize, bits)
	if err != nil {
		return nil, err
	}

	m := &QuantizedLinear{
		Weight:    wq,
		Scales:    scales,
		Biases:    biases,
		Bias:      l.Bias,
		GroupSize: groupSize,
		Bits:      bits,
	}
	Freeze(m, false)

	return m, nil
}

func (m *QuantizedLinear) Forward(t ml.Tensor) ml.Tensor {
	w, err := t.Context().Dequantize(m.Weight, m.Scales, m.Biases, m.GroupSize, m.Bits)
	if err != nil {
		panic(err)
	}

	t = t.Matmul(w.Transpose())
	if m.Bias != nil {
		t = t.Add(m.Bias)
	}

	return t
}

// QuantizedEmbedding is an Embedding with a quantized table, frozen on
// construction like QuantizedLinear.
type QuantizedEmbedding struct {
	Base

	Weight ml.Tensor
	Scales ml.Tensor
	Biases ml.Tensor

	GroupSize int
	Bits      int
}

func NewQuantizedEmbedding(ctx ml.Context, e *Embedding, groupSize, bits int) (*QuantizedEmbedding, error) {
	wq, scales, biases, err := ctx.Quantize(e.Weight, groupSize, bits)
	if err != nil {
		return nil, err
	}

	m := &QuantizedEmbedding{
		Weight:    wq,
		Scales:    scales,
		Biases:    biases,
		GroupSize: groupSize,
		Bits:      bits,
	}
	Freeze(m, false)

	return m, nil
}

func (m *QuantizedEmbedding) Forward(t ml.Tensor) ml.Tensor {
	w, err := t.Context().Dequantize(m.Weight, m.Scales, m.Biases, m.GroupSize, m.Bits)
	if err != nil {
		panic(err)
	}

	return w.Rows(t)
}
