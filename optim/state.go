package optim

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/weave-ml/weave/ml"
	"github.com/weave-ml/weave/nested"
)

const snapshotVersion = 1

// snapshot is the serialized form of an optimizer's state.
type snapshot struct {
	Version int          `cbor:"version"`
	Kind    string       `cbor:"kind"`
	Step    int64        `cbor:"step"`
	LR      float32      `cbor:"lr"`
	State   []stateEntry `cbor:"state"`
}

type stateEntry struct {
	Path  string  `cbor:"path"`
	DType string  `cbor:"dtype"`
	Shape []int64 `cbor:"shape"`
	Data  []byte  `cbor:"data"`
}

// restorer is satisfied by every optimizer built on base.
type restorer interface {
	restore(count int64, lr float32, state *nested.Dictionary[ml.Tensor])
}

// SaveState writes opt's step count, learning rate and state tensors to
// w so training can resume later with LoadState.
func SaveState(w io.Writer, opt Optimizer) error {
	snap := snapshot{
		Version: snapshotVersion,
		Kind:    opt.Name(),
		Step:    opt.Step(),
		LR:      opt.LearningRate(),
	}

	for _, e := range opt.State().Flatten() {
		snap.State = append(snap.State, stateEntry{
			Path:  e.Path,
			DType: e.Val.DType().String(),
			Shape: e.Val.Shape(),
			Data:  e.Val.Bytes(),
		})
	}

	return cbor.NewEncoder(w).Encode(snap)
}

// LoadState restores a snapshot written by SaveState into opt, which
// must be the same optimizer kind. State tensors are rebuilt on ctx.
func LoadState(r io.Reader, ctx ml.Context, opt Optimizer) error {
	var snap snapshot
	if err := cbor.NewDecoder(r).Decode(&snap); err != nil {
		return err
	}

	if snap.Version != snapshotVersion {
		return fmt.Errorf("optim: unsupported snapshot version %d", snap.Version)
	}
	if snap.Kind != opt.Name() {
		return fmt.Errorf("optim: snapshot of %q cannot restore %q", snap.Kind, opt.Name())
	}

	state := nested.NewDictionary[ml.Tensor]()
	for _, e := range snap.State {
		dtype, err := ml.ParseDType(e.DType)
		if err != nil {
			return err
		}

		t, err := ctx.FromBytes(dtype, e.Data, e.Shape...)
		if err != nil {
			return fmt.Errorf("optim: state %q: %w", e.Path, err)
		}

		state.SetPath(e.Path, nested.Value[ml.Tensor]{Val: t})
	}

	rs, ok := opt.(restorer)
	if !ok {
		return fmt.Errorf("optim: %s does not support restore", opt.Name())
	}
	rs.restore(snap.Step, snap.LR, state)

	return nil
}
