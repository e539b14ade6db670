package optim

import (
	"github.com/weave-ml/weave/ml"
	"github.com/weave-ml/weave/nested"
	"github.com/weave-ml/weave/nn"
)

// SGDConfig configures NewSGD. Zero values select the defaults noted on
// each field.
type SGDConfig struct {
	LearningRate float32 // default 0.01
	Momentum     float32 // no momentum when zero
	WeightDecay  float32
	Dampening    float32
	Nesterov     bool
}

// SGD is stochastic gradient descent with optional momentum, dampening,
// weight decay and nesterov acceleration.
type SGD struct {
	base
	cfg SGDConfig
}

func NewSGD(cfg SGDConfig) *SGD {
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.01
	}

	return &SGD{base: newBase(cfg.LearningRate), cfg: cfg}
}

func (s *SGD) Name() string { return "sgd" }

func (s *SGD) Update(m nn.Module, grads *nested.Dictionary[ml.Tensor]) error {
	return s.apply(m, grads, func(path string, p, g ml.Tensor) ml.Tensor {
		if s.cfg.WeightDecay != 0 {
			g = g.Add(p.Scale(float64(s.cfg.WeightDecay)))
		}

		if s.cfg.Momentum <= 0 {
			return p.Sub(g.Scale(float64(s.lr)))
		}

		v := s.slot(path, "v", p).Scale(float64(s.cfg.Momentum))
		if s.cfg.Dampening > 0 {
			v = v.Add(g.Scale(1 - float64(s.cfg.Dampening)))
		} else {
			v = v.Add(g)
		}
		s.setSlot(path, "v", v)

		if s.cfg.Nesterov {
			g = g.Add(v.Scale(float64(s.cfg.Momentum)))
			return p.Sub(g.Scale(float64(s.lr)))
		}

		return p.Sub(v.Scale(float64(s.lr)))
	})
}
