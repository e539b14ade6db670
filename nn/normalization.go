package nn

import "github.com/weave-ml/weave/ml"

type LayerNorm struct {
	Base

	Weight ml.Tensor
	Bias   ml.Tensor
	Eps    float32
}

func NewLayerNorm(ctx ml.Context, dims int64, eps float32) *LayerNorm {
	return &LayerNorm{
		Weight: ctx.Ones(ml.DTypeF32, dims),
		Bias:   ctx.Zeros(ml.DTypeF32, dims),
		Eps:    eps,
	}
}

func (m *LayerNorm) Forward(t ml.Tensor) ml.Tensor {
	return t.LayerNorm(m.Weight, m.Bias, m.Eps)
}

type RMSNorm struct {
	Base

	Weight ml.Tensor
	Eps    float32
}

func NewRMSNorm(ctx ml.Context, dims int64, eps float32) *RMSNorm {
	return &RMSNorm{
		Weight: ctx.Ones(ml.DTypeF32, dims),
		Eps:    eps,
	}
}

func (m *RMSNorm) Forward(t ml.Tensor) ml.Tensor {
	return t.RMSNorm(m.Weight, m.Eps)
}
