package nn

import (
	"math"

	"github.com/weave-ml/weave/ml"
)

// Unary is a module with a single-tensor forward pass. Layer collections
// such as Sequential hold their elements as Unary so implementations can be
// swapped at runtime.
type Unary interface {
	Module
	Forward(t ml.Tensor) ml.Tensor
}

type Linear struct {
	Base

	Weight ml.Tensor
	Bias   ml.Tensor
}

// NewLinear initializes a layer mapping in features to out features, with
// weights drawn from U(-k, k), k = 1/sqrt(in).
func NewLinear(ctx ml.Context, in, out int64, bias bool) *Linear {
	k := float32(1 / math.Sqrt(float64(in)))

	m := &Linear{Weight: ctx.Uniform(-k, k, ml.DTypeF32, out, in)}
	if bias {
		m.Bias = ctx.Uniform(-k, k, ml.DTypeF32, out)
	}

	return m
}

func (m *Linear) Forward(t ml.Tensor) ml.Tensor {
	t = t.Matmul(m.Weight.Transpose())
	if m.Bias != nil {
		t = t.Add(m.Bias)
	}

	return t
}
