package optim

import (
	"github.com/weave-ml/weave/ml"
	"github.com/weave-ml/weave/nested"
	"github.com/weave-ml/weave/nn"
)

// RMSPropConfig configures NewRMSProp. Zero values select the defaults
// noted on each field.
type RMSPropConfig struct {
	LearningRate float32 // default 0.01
	Alpha        float32 // smoothing constant, default 0.99
	Eps          float32 // default 1e-8
}

// RMSProp scales each gradient by the root of a moving average of its
// square.
type RMSProp struct {
	base
	cfg RMSPropConfig
}

func NewRMSProp(cfg RMSPropConfig) *RMSProp {
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.01
	}
	if cfg.Alpha == 0 {
		cfg.Alpha = 0.99
	}
	if cfg.Eps == 0 {
		cfg.Eps = 1e-8
	}

	return &RMSProp{base: newBase(cfg.LearningRate), cfg: cfg}
}

func (r *RMSProp) Name() string { return "rmsprop" }

func (r *RMSProp) Update(m nn.Module, grads *nested.Dictionary[ml.Tensor]) error {
	alpha := float64(r.cfg.Alpha)
	return r.apply(m, grads, func(path string, p, g ml.Tensor) ml.Tensor {
		v := r.slot(path, "v", p).Scale(alpha).Add(g.Square().Scale(1 - alpha))
		r.setSlot(path, "v", v)

		denom := v.Sqrt().Add(scalar(p, float64(r.cfg.Eps)))
		return p.Sub(g.Div(denom).Scale(float64(r.lr)))
	})
}
