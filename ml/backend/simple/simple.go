// Package simple is an eager, in-memory reference backend for the ml
// capability interfaces. It favors correctness and readability over speed:
// all arithmetic runs through float64 scratch buffers on the host. It backs
// the package tests and the weave CLI; real workloads use an engine backend.
package simple

import (
	"golang.org/x/exp/rand"

	"github.com/weave-ml/weave/ml"
)

func init() {
	ml.RegisterBackend("simple", func() (ml.Backend, error) {
		return New(), nil
	})
}

type Backend struct {
	rng *rand.Rand
}

// New returns a backend with a fixed RNG seed so that initialization is
// reproducible across runs.
func New() *Backend {
	return NewWithSeed(0)
}

func NewWithSeed(seed uint64) *Backend {
	return &Backend{rng: rand.New(rand.NewSource(seed))}
}

func (b *Backend) Name() string { return "simple" }

// NewContext returns a construction context. Contexts created from the same
// backend share its RNG stream, so concurrent random draws are not safe;
// construction from explicit data is.
func (b *Backend) NewContext() ml.Context {
	return &context{b: b}
}
