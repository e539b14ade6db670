// Package ml defines the capability surface of an array engine as consumed
// by the module tree: opaque tensor handles, a construction context, and a
// backend registry. Engines register themselves at init time; everything
// above this package works purely in terms of these interfaces.
package ml

import "fmt"

// Backend is one engine implementation (a device, or a reference
// implementation for tests and tooling).
type Backend interface {
	Name() string
	NewContext() Context
}

var backends = make(map[string]func() (Backend, error))

// RegisterBackend registers a backend constructor under a name. It panics if
// the name is already taken.
func RegisterBackend(name string, f func() (Backend, error)) {
	if _, ok := backends[name]; ok {
		panic("ml: backend already registered: " + name)
	}

	backends[name] = f
}

// NewBackend resolves a registered backend by name. An empty name selects
// "simple", the in-memory reference backend.
func NewBackend(name string) (Backend, error) {
	if name == "" {
		name = "simple"
	}

	if f, ok := backends[name]; ok {
		return f()
	}

	return nil, fmt.Errorf("ml: unsupported backend %q", name)
}

// Context constructs tensors. Contexts are cheap; callers may create one per
// unit of work. Constructing from explicit data (Zeros, Ones, From*) is safe
// for concurrent use; the random initializers share the backend's RNG stream
// and are not.
type Context interface {
	Zeros(dtype DType, shape ...int64) Tensor
	Ones(dtype DType, shape ...int64) Tensor
	FromFloatSlice(s []float32, shape ...int64) (Tensor, error)
	FromIntSlice(s []int32, shape ...int64) (Tensor, error)
	FromBytes(dtype DType, data []byte, shape ...int64) (Tensor, error)

	// Uniform draws samples from U(low, high).
	Uniform(low, high float32, dtype DType, shape ...int64) Tensor
	// Bernoulli returns a float mask of ones (with probability p) and zeros.
	Bernoulli(p float32, shape ...int64) Tensor

	// Quantize packs a 2D floating tensor into affine-quantized form with
	// per-group scales and biases along the last axis.
	Quantize(t Tensor, groupSize, bits int) (wq, scales, biases Tensor, err error)
	Dequantize(wq, scales, biases Tensor, groupSize, bits int) (Tensor, error)
}

// Tensor is an opaque handle to an n-dimensional array value. Handles are
// immutable: every operation returns a new handle, and replacing a stored
// tensor means replacing the handle, never mutating contents in place.
//
// Arithmetic follows the engine's semantics; the module tree only relies on
// the operations below plus shape and dtype introspection.
type Tensor interface {
	Context() Context

	Shape() []int64
	Dim(n int) int64
	DType() DType
	NumElements() int64

	Bytes() []byte
	Floats() []float32

	Add(t2 Tensor) Tensor
	Sub(t2 Tensor) Tensor
	Mul(t2 Tensor) Tensor
	Div(t2 Tensor) Tensor
	Square() Tensor
	Sqrt() Tensor
	Scale(s float64) Tensor

	Matmul(t2 Tensor) Tensor
	Transpose(axes ...int) Tensor
	Rows(indices Tensor) Tensor

	LayerNorm(weight, bias Tensor, eps float32) Tensor
	RMSNorm(weight Tensor, eps float32) Tensor

	Cast(dtype DType) Tensor
	Equal(t2 Tensor) bool
}
