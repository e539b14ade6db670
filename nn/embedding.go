package nn

import (
	"math"

	"github.com/weave-ml/weave/ml"
)

type Embedding struct {
	Base

	Weight ml.Tensor
}

// NewEmbedding initializes a table of num embeddings with dims features
// each.
func NewEmbedding(ctx ml.Context, num, dims int64) *Embedding {
	k := float32(1 / math.Sqrt(float64(dims)))
	return &Embedding{Weight: ctx.Uniform(-k, k, ml.DTypeF32, num, dims)}
}

// Forward looks up the rows named by the integer tensor t.
func (m *Embedding) Forward(t ml.Tensor) ml.Tensor {
	return m.Weight.Rows(t)
}
