package nn

import (
	"fmt"

	"github.com/weave-ml/weave/ml"
)

// Dropout zeroes each element with probability P during training and
// rescales the survivors by 1/(1-P). In evaluation mode it is the identity.
type Dropout struct {
	Base

	P float32
}

func NewDropout(p float32) *Dropout {
	if p < 0 || p >= 1 {
		panic(fmt.Sprintf("nn: dropout probability %v outside [0, 1)", p))
	}

	return &Dropout{P: p}
}

func (m *Dropout) Forward(t ml.Tensor) ml.Tensor {
	if !m.Training() || m.P == 0 {
		return t
	}

	keep := 1 - m.P
	mask := t.Context().Bernoulli(keep, t.Shape()...)

	return t.Mul(mask).Scale(1 / float64(keep))
}
