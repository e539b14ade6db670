// Package optim implements gradient descent optimizers over module
// parameter trees. An optimizer consumes a gradient tree shaped like
// nn.TrainableParameters of the module, applies its update rule leaf by
// leaf, and writes the results back through nn.Update. Per-parameter
// state (momentum, variance) lives in a nested dictionary keyed by
// parameter path and is created lazily as gradients arrive, so one
// optimizer can serve modules of any shape.
package optim

import (
	"fmt"
	"log/slog"

	"github.com/weave-ml/weave/ml"
	"github.com/weave-ml/weave/nested"
	"github.com/weave-ml/weave/nn"
)

// Optimizer updates a module's trainable parameters from a gradient tree.
type Optimizer interface {
	// Update applies one optimization step. grads mirrors the structure
	// of nn.TrainableParameters(m); gradients whose paths do not resolve
	// to a trainable parameter are skipped.
	Update(m nn.Module, grads *nested.Dictionary[ml.Tensor]) error

	// Step reports the number of updates applied so far.
	Step() int64

	LearningRate() float32
	SetLearningRate(lr float32)

	// Name identifies the update rule, e.g. "sgd". It tags state
	// snapshots so a snapshot cannot restore the wrong optimizer kind.
	Name() string

	// State holds the per-parameter state tensors, keyed by parameter
	// path with one sub-key per slot, e.g. "blocks.0.attn.weight.m".
	State() *nested.Dictionary[ml.Tensor]
}

// base carries the pieces every optimizer shares.
type base struct {
	lr    float32
	count int64
	state *nested.Dictionary[ml.Tensor]
}

func newBase(lr float32) base {
	return base{lr: lr, state: nested.NewDictionary[ml.Tensor]()}
}

func (b *base) Step() int64                          { return b.count }
func (b *base) LearningRate() float32                { return b.lr }
func (b *base) SetLearningRate(lr float32)           { b.lr = lr }
func (b *base) State() *nested.Dictionary[ml.Tensor] { return b.state }

func (b *base) restore(count int64, lr float32, state *nested.Dictionary[ml.Tensor]) {
	b.count = count
	b.lr = lr
	b.state = state
}

// slot returns the state tensor stored at path.name, or fresh zeros
// shaped like p when the slot has not been written yet. Callers store
// the updated slot back with setSlot.
func (b *base) slot(path, name string, p ml.Tensor) ml.Tensor {
	if it, ok := b.state.GetPath(path + "." + name); ok {
		if v, ok := it.(nested.Value[ml.Tensor]); ok {
			return v.Val
		}
	}

	return p.Context().Zeros(p.DType(), p.Shape()...)
}

func (b *base) setSlot(path, name string, t ml.Tensor) {
	b.state.SetPath(path+"."+name, nested.Value[ml.Tensor]{Val: t})
}

// apply runs rule over every gradient leaf that resolves to a trainable
// parameter of m, then writes the new tensors back into the module.
// Gradients at frozen or unknown paths are skipped. A gradient whose
// path names an interior node of the parameter tree is an error.
func (b *base) apply(m nn.Module, grads *nested.Dictionary[ml.Tensor], rule func(path string, p, g ml.Tensor) ml.Tensor) error {
	params := nn.TrainableParameters(m)

	updated := nested.NewDictionary[ml.Tensor]()
	for _, e := range grads.Flatten() {
		it, ok := params.GetPath(e.Path)
		if !ok {
			slog.Debug("no trainable parameter for gradient", "path", e.Path)
			continue
		}

		p, ok := it.(nested.Value[ml.Tensor])
		if !ok {
			return fmt.Errorf("optim: gradient at %q does not name a parameter", e.Path)
		}

		updated.SetPath(e.Path, nested.Value[ml.Tensor]{Val: rule(e.Path, p.Val, e.Val)})
	}

	b.count++
	nn.Update(m, updated)
	return nil
}

// scalar builds a single element tensor for broadcasting against p.
func scalar(p ml.Tensor, v float64) ml.Tensor {
	return p.Context().Ones(p.DType(), 1).Scale(v)
}
