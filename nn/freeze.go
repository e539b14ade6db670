package nn

import (
	"errors"
	"fmt"

	"github.com/weave-ml/weave/nested"
)

// ErrUnknownKey reports a freeze or unfreeze key that resolves to nothing
// in any visited module.
var ErrUnknownKey = errors.New("nn: unknown parameter key")

// Freeze marks parameters non-trainable. With no keys it freezes every
// parameter of each visited module; explicit keys are interpreted relative
// to each visited module, so Freeze(m, true, "bias") freezes every bias in
// the tree. recurse extends the visit to all descendants. Keys naming
// nothing are ignored. Freezing is idempotent.
//
// A frozen key suppresses the member during trainable traversal of its
// owning module; freezing a collection key prunes the whole collection.
func Freeze(m Module, recurse bool, keys ...string) {
	setFrozen(m, recurse, false, true, keys)
}

// FreezeStrict is Freeze, but reports an error wrapping ErrUnknownKey for
// any key that resolves in none of the visited modules.
func FreezeStrict(m Module, recurse bool, keys ...string) error {
	return setFrozen(m, recurse, true, true, keys)
}

// Unfreeze reverses Freeze with the same key semantics. With no keys it
// clears every frozen parameter key of each visited module.
func Unfreeze(m Module, recurse bool, keys ...string) {
	setFrozen(m, recurse, false, false, keys)
}

// UnfreezeStrict is Unfreeze with FreezeStrict's unknown-key reporting.
func UnfreezeStrict(m Module, recurse bool, keys ...string) error {
	return setFrozen(m, recurse, true, false, keys)
}

func setFrozen(m Module, recurse, strict, freeze bool, keys []string) error {
	mods := []Module{m}
	if recurse {
		mods = Modules(m)
	}

	for _, mod := range mods {
		local := keys
		if len(keys) == 0 {
			local = localParamPaths(mod)
		}

		if freeze {
			mod.base().freeze(local)
		} else {
			mod.base().unfreeze(local)
		}
	}

	if strict {
		for _, k := range keys {
			if !resolves(mods, k) {
				return fmt.Errorf("%w: %q", ErrUnknownKey, k)
			}
		}
	}

	return nil
}

// localParamPaths lists the parameter paths owned by m itself, stopping at
// sub-module boundaries.
func localParamPaths(m Module) []string {
	var paths []string
	localParams(m).Walk(func(path string, _ struct{}) {
		paths = append(paths, path)
	})

	return paths
}

func localParams(m Module) *nested.Dictionary[struct{}] {
	return FilterMap(m, func(m Module, key string, v Value) bool {
		switch v.(type) {
		case Param, ValueList, ValueMap:
			return true
		}
		return false
	}, func(Value) (struct{}, bool) { return struct{}{}, true }, nil)
}

func resolves(mods []Module, key string) bool {
	for _, mod := range mods {
		if _, ok := Parameters(mod).GetPath(key); ok {
			return true
		}
	}

	return false
}

// Train switches every module in the tree between training mode and
// evaluation mode.
func Train(m Module, mode bool) {
	for _, mod := range Modules(m) {
		mod.base().eval = !mode
	}
}

// Eval puts the whole tree in evaluation mode.
func Eval(m Module) {
	Train(m, false)
}
