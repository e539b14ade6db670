package nn

import "github.com/weave-ml/weave/ml"

// Sequential chains layers, feeding each one's output to the next.
type Sequential struct {
	Base

	Layers []Unary
}

func NewSequential(layers ...Unary) *Sequential {
	return &Sequential{Layers: layers}
}

func (m *Sequential) Forward(t ml.Tensor) ml.Tensor {
	for _, l := range m.Layers {
		t = l.Forward(t)
	}

	return t
}
