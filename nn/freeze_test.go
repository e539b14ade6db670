package nn

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/weave-ml/weave/ml"
)

func testTower(t *testing.T, ctx ml.Context) *Sequential {
	t.Helper()

	return NewSequential(
		NewLinear(ctx, 4, 4, true),
		NewLinear(ctx, 4, 4, false),
		NewRMSNorm(ctx, 4, 1e-5),
	)
}

func TestFreezePartition(t *testing.T) {
	ctx := testContext(t)
	m := testTower(t, ctx)

	all := paths(Parameters(m))
	if diff := cmp.Diff(all, paths(TrainableParameters(m))); diff != "" {
		t.Fatalf("everything should start trainable (-want +got):\n%s", diff)
	}

	Freeze(m, true)
	if got := paths(TrainableParameters(m)); len(got) != 0 {
		t.Errorf("after freeze, trainable = %v, want none", got)
	}

	// Parameters is unaffected by freezing.
	if diff := cmp.Diff(all, paths(Parameters(m))); diff != "" {
		t.Errorf("parameters after freeze (-want +got):\n%s", diff)
	}

	Unfreeze(m, true)
	if diff := cmp.Diff(all, paths(TrainableParameters(m))); diff != "" {
		t.Errorf("after unfreeze (-want +got):\n%s", diff)
	}
}

func TestFreezeNonRecursive(t *testing.T) {
	ctx := testContext(t)

	type model struct {
		Base
		Weight ml.Tensor
		Head   *Linear
	}

	m := &model{Weight: zeros(ctx, 2), Head: NewLinear(ctx, 2, 2, false)}

	Freeze(m, false)

	want := []string{"head.weight"}
	if diff := cmp.Diff(want, paths(TrainableParameters(m))); diff != "" {
		t.Errorf("non-recursive freeze should leave children trainable (-want +got):\n%s", diff)
	}
}

func TestFreezeByKey(t *testing.T) {
	ctx := testContext(t)
	m := NewSequential(
		NewLinear(ctx, 4, 4, true),
		NewLinear(ctx, 4, 2, true),
	)

	// Keys apply to every visited module, so one call freezes every bias.
	Freeze(m, true, "bias")

	want := []string{"layers.0.weight", "layers.1.weight"}
	if diff := cmp.Diff(want, paths(TrainableParameters(m))); diff != "" {
		t.Errorf("trainable after freezing biases (-want +got):\n%s", diff)
	}

	Unfreeze(m, true, "bias")
	if diff := cmp.Diff(paths(Parameters(m)), paths(TrainableParameters(m))); diff != "" {
		t.Errorf("trainable after unfreezing biases (-want +got):\n%s", diff)
	}
}

func TestFreezeIdempotent(t *testing.T) {
	ctx := testContext(t)
	m := testTower(t, ctx)

	Freeze(m, true)
	Freeze(m, true)
	if got := paths(TrainableParameters(m)); len(got) != 0 {
		t.Errorf("double freeze: trainable = %v, want none", got)
	}

	Unfreeze(m, true)
	Unfreeze(m, true)
	if diff := cmp.Diff(paths(Parameters(m)), paths(TrainableParameters(m))); diff != "" {
		t.Errorf("double unfreeze (-want +got):\n%s", diff)
	}
}

func TestFreezeThenUnfreezeChild(t *testing.T) {
	ctx := testContext(t)
	m := testTower(t, ctx)

	// The fine-tuning pattern: freeze everything, then reopen one layer.
	Freeze(m, true)
	Unfreeze(m.Layers[1].(*Linear), true)

	want := []string{"layers.1.weight"}
	if diff := cmp.Diff(want, paths(TrainableParameters(m))); diff != "" {
		t.Errorf("trainable after reopening one layer (-want +got):\n%s", diff)
	}
}

func TestFreezeStrictUnknownKey(t *testing.T) {
	ctx := testContext(t)
	m := testTower(t, ctx)

	err := FreezeStrict(m, true, "gamma")
	if !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("err = %v, want ErrUnknownKey", err)
	}

	// Non-strict freezing ignores the same key.
	Freeze(m, true, "gamma")
	if diff := cmp.Diff(paths(Parameters(m)), paths(TrainableParameters(m))); diff != "" {
		t.Errorf("unknown key should freeze nothing (-want +got):\n%s", diff)
	}

	// A key valid in only some visited modules is not an error.
	if err := FreezeStrict(m, true, "bias"); err != nil {
		t.Errorf("FreezeStrict(bias) = %v, want nil", err)
	}

	if err := UnfreezeStrict(m, true, "gamma"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("UnfreezeStrict err = %v, want ErrUnknownKey", err)
	}
}

func TestFreezeCollectionKey(t *testing.T) {
	ctx := testContext(t)

	type bank struct {
		Base
		W    []ml.Tensor
		Bias ml.Tensor
	}

	m := &bank{
		W:    []ml.Tensor{zeros(ctx, 2), zeros(ctx, 2)},
		Bias: zeros(ctx, 2),
	}

	// Freezing the collection key prunes every element under it.
	Freeze(m, false, "w")

	want := []string{"bias"}
	if diff := cmp.Diff(want, paths(TrainableParameters(m))); diff != "" {
		t.Errorf("trainable after freezing collection (-want +got):\n%s", diff)
	}

	// A single element can be frozen by its indexed path instead.
	Unfreeze(m, false, "w")
	Freeze(m, false, "w.0")

	want = []string{"w.1", "bias"}
	if diff := cmp.Diff(want, paths(TrainableParameters(m))); diff != "" {
		t.Errorf("trainable after freezing one element (-want +got):\n%s", diff)
	}
}

func TestTrainToggle(t *testing.T) {
	ctx := testContext(t)

	drop := NewDropout(0.5)
	m := NewSequential(NewLinear(ctx, 2, 2, false), drop)

	if !m.Training() || !drop.Training() {
		t.Fatal("modules should start in training mode")
	}

	Eval(m)
	if m.Training() || drop.Training() {
		t.Error("Eval should propagate to every module")
	}

	Eval(m) // idempotent
	if drop.Training() {
		t.Error("repeated Eval should keep evaluation mode")
	}

	Train(m, true)
	if !m.Training() || !drop.Training() {
		t.Error("Train(true) should propagate to every module")
	}
}

func TestQuantizedLayersAreFrozen(t *testing.T) {
	ctx := testContext(t)

	l := NewLinear(ctx, 4, 4, true)
	q, err := NewQuantizedLinear(ctx, l, 2, 8)
	if err != nil {
		t.Fatal(err)
	}

	if got := paths(TrainableParameters(q)); len(got) != 0 {
		t.Errorf("quantized layer trainable = %v, want none", got)
	}

	want := []string{"weight", "scales", "biases", "bias"}
	if diff := cmp.Diff(want, paths(Parameters(q))); diff != "" {
		t.Errorf("quantized layer parameters (-want +got):\n%s", diff)
	}
}
