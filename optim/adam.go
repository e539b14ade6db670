package optim

import (
	"math"

	"github.com/weave-ml/weave/ml"
	"github.com/weave-ml/weave/nested"
	"github.com/weave-ml/weave/nn"
)

// AdamConfig configures NewAdam. Zero values select the defaults noted
// on each field.
type AdamConfig struct {
	LearningRate float32    // default 0.001
	Betas        [2]float32 // default {0.9, 0.999}
	Eps          float32    // default 1e-8
}

// Adam keeps exponential moving averages of gradients and squared
// gradients per parameter, corrected for startup bias.
type Adam struct {
	base
	cfg AdamConfig
}

func NewAdam(cfg AdamConfig) *Adam {
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.001
	}
	if cfg.Betas == [2]float32{} {
		cfg.Betas = [2]float32{0.9, 0.999}
	}
	if cfg.Eps == 0 {
		cfg.Eps = 1e-8
	}

	return &Adam{base: newBase(cfg.LearningRate), cfg: cfg}
}

func (a *Adam) Name() string { return "adam" }

func (a *Adam) Update(m nn.Module, grads *nested.Dictionary[ml.Tensor]) error {
	c1, c2 := a.corrections()
	return a.apply(m, grads, func(path string, p, g ml.Tensor) ml.Tensor {
		return a.adamStep(path, p, g, c1, c2)
	})
}

// corrections returns the bias factors for the step about to be applied.
func (a *Adam) corrections() (c1, c2 float64) {
	t := float64(a.count + 1)
	return 1 - math.Pow(float64(a.cfg.Betas[0]), t), 1 - math.Pow(float64(a.cfg.Betas[1]), t)
}

func (a *Adam) adamStep(path string, p, g ml.Tensor, c1, c2 float64) ml.Tensor {
	b1, b2 := float64(a.cfg.Betas[0]), float64(a.cfg.Betas[1])

	mom := a.slot(path, "m", p).Scale(b1).Add(g.Scale(1 - b1))
	vel := a.slot(path, "v", p).Scale(b2).Add(g.Square().Scale(1 - b2))
	a.setSlot(path, "m", mom)
	a.setSlot(path, "v", vel)

	denom := vel.Scale(1 / c2).Sqrt().Add(scalar(p, float64(a.cfg.Eps)))
	return p.Sub(mom.Scale(1 / c1).Div(denom).Scale(float64(a.lr)))
}

// AdamWConfig configures NewAdamW.
type AdamWConfig struct {
	AdamConfig
	WeightDecay float32 // default 0.01
}

// AdamW is Adam with decoupled weight decay: the decay shrinks the
// parameter directly instead of entering the gradient averages.
type AdamW struct {
	Adam
	weightDecay float32
}

func NewAdamW(cfg AdamWConfig) *AdamW {
	if cfg.WeightDecay == 0 {
		cfg.WeightDecay = 0.01
	}

	return &AdamW{Adam: *NewAdam(cfg.AdamConfig), weightDecay: cfg.WeightDecay}
}

func (w *AdamW) Name() string { return "adamw" }

func (w *AdamW) Update(m nn.Module, grads *nested.Dictionary[ml.Tensor]) error {
	c1, c2 := w.corrections()
	return w.apply(m, grads, func(path string, p, g ml.Tensor) ml.Tensor {
		p = p.Scale(1 - float64(w.lr)*float64(w.weightDecay))
		return w.adamStep(path, p, g, c1, c2)
	})
}
