package nn

import (
	"strconv"

	"github.com/weave-ml/weave/ml"
	"github.com/weave-ml/weave/nested"
)

// FilterFunc decides whether a member survives traversal. key is the dotted
// path relative to m, the module whose members are being walked; entering a
// sub-module restarts the keys at that module.
type FilterFunc func(m Module, key string, v Value) bool

// LeafFunc decides whether traversal stops at a member instead of recursing
// into it.
type LeafFunc func(m Module, key string, v Value) bool

// FilterAll keeps every member.
func FilterAll(Module, string, Value) bool { return true }

// FilterValidParameters keeps tensors and anything that can contain them.
func FilterValidParameters(m Module, key string, v Value) bool {
	switch v.(type) {
	case Param, ValueList, ValueMap, Child:
		return true
	}

	return false
}

// FilterTrainableParameters keeps parameters not frozen on their owning
// module.
func FilterTrainableParameters(m Module, key string, v Value) bool {
	return FilterValidParameters(m, key, v) && !m.base().isFrozen(key)
}

// FilterValidChild keeps sub-modules and collections that can contain them.
func FilterValidChild(m Module, key string, v Value) bool {
	switch v.(type) {
	case Child, ValueList, ValueMap:
		return true
	}

	return false
}

// FilterOther keeps configuration scalars.
func FilterOther(m Module, key string, v Value) bool {
	_, ok := v.(Other)
	return ok
}

// LeafDefault stops at tensors and scalars, recursing through collections
// and sub-modules.
func LeafDefault(m Module, key string, v Value) bool {
	switch v.(type) {
	case Param, Other:
		return true
	}

	return false
}

// LeafModule stops at sub-modules without entering them.
func LeafModule(m Module, key string, v Value) bool {
	_, ok := v.(Child)
	return ok
}

// FilterMap walks the tree below m and rebuilds it as a nested.Dictionary.
// filter prunes members (nil keeps everything), mapFn converts each leaf
// (returning false to omit it), and isLeaf bounds the recursion (nil stops
// at tensors and scalars).
//
// Omission is two-level: a pruned or omitted element inside an array or
// keyed collection leaves a None placeholder so sibling positions keep
// their paths, while a member or branch with no surviving leaf at all is
// dropped from its parent entirely.
func FilterMap[T any](m Module, filter FilterFunc, mapFn func(Value) (T, bool), isLeaf LeafFunc) *nested.Dictionary[T] {
	if filter == nil {
		filter = FilterAll
	}
	if isLeaf == nil {
		isLeaf = LeafDefault
	}

	out := nested.NewDictionary[T]()
	for _, mem := range Items(m) {
		if !filter(m, mem.Name, mem.Val) {
			continue
		}

		if it, ok := visit(m, mem.Name, mem.Val, filter, mapFn, isLeaf); ok {
			out.Set(mem.Name, it)
		}
	}

	return out
}

func visit[T any](m Module, key string, v Value, filter FilterFunc, mapFn func(Value) (T, bool), isLeaf LeafFunc) (nested.Item[T], bool) {
	if isLeaf(m, key, v) {
		t, ok := mapFn(v)
		if !ok {
			return nil, false
		}
		return nested.Value[T]{Val: t}, true
	}

	switch vv := v.(type) {
	case Child:
		d := FilterMap(vv.Module, filter, mapFn, isLeaf)
		if d.Empty() {
			return nil, false
		}
		return nested.Dict[T]{Dictionary: d}, true

	case ValueList:
		arr := make(nested.Array[T], len(vv))
		found := false
		for i, el := range vv {
			arr[i] = nested.None[T]{}
			if el == nil {
				continue
			}

			ek := key + "." + strconv.Itoa(i)
			if !filter(m, ek, el) {
				continue
			}
			if it, ok := visit(m, ek, el, filter, mapFn, isLeaf); ok {
				arr[i] = it
				found = true
			}
		}
		if !found {
			return nil, false
		}
		return arr, true

	case ValueMap:
		d := nested.NewDictionary[T]()
		found := false
		for _, e := range vv {
			d.Set(e.Key, nested.None[T]{})
			if e.Val == nil {
				continue
			}

			ek := key + "." + e.Key
			if !filter(m, ek, e.Val) {
				continue
			}
			if it, ok := visit(m, ek, e.Val, filter, mapFn, isLeaf); ok {
				d.Set(e.Key, it)
				found = true
			}
		}
		if !found {
			return nil, false
		}
		return nested.Dict[T]{Dictionary: d}, true
	}

	return nil, false
}

func mapParam(v Value) (ml.Tensor, bool) {
	if p, ok := v.(Param); ok {
		return p.Tensor, true
	}

	return nil, false
}

// Parameters returns every tensor in the tree keyed by dotted path.
func Parameters(m Module) *nested.Dictionary[ml.Tensor] {
	return FilterMap(m, FilterValidParameters, mapParam, nil)
}

// TrainableParameters returns the tensors Parameters would, minus frozen
// ones. Frozen slots inside collections stay visible as placeholders.
func TrainableParameters(m Module) *nested.Dictionary[ml.Tensor] {
	return FilterMap(m, FilterTrainableParameters, mapParam, nil)
}

// MapParameters rebuilds the parameter tree with fn applied to every
// tensor. fn returning false leaves a placeholder, so the result stays
// congruent with Parameters.
func MapParameters[T any](m Module, fn func(ml.Tensor) (T, bool)) *nested.Dictionary[T] {
	return FilterMap(m, FilterValidParameters, func(v Value) (T, bool) {
		p, ok := v.(Param)
		if !ok {
			var zero T
			return zero, false
		}
		return fn(p.Tensor)
	}, nil)
}

// Children returns the immediate sub-modules keyed by member label, without
// entering them.
func Children(m Module) *nested.Dictionary[Module] {
	return FilterMap(m, FilterValidChild, func(v Value) (Module, bool) {
		if c, ok := v.(Child); ok {
			return c.Module, true
		}
		return nil, false
	}, LeafModule)
}

// Modules lists m and every module below it, depth first in member order. A
// node reachable through two parents is listed once per path.
func Modules(m Module) []Module {
	var out []Module
	WalkModules(m, func(string, Module) bool { return true }, func(path string, mod Module) {
		out = append(out, mod)
	})

	return out
}

// WalkModules visits m under the empty path and every descendant module
// under its dotted path from m. enter (nil means always) decides whether a
// visited module's own children are walked.
func WalkModules(m Module, enter func(path string, m Module) bool, fn func(path string, m Module)) {
	walkModules("", m, enter, fn)
}

func walkModules(path string, m Module, enter func(string, Module) bool, fn func(string, Module)) {
	fn(path, m)
	if enter != nil && !enter(path, m) {
		return
	}

	for _, mem := range Items(m) {
		walkChild(joinPath(path, mem.Name), mem.Val, enter, fn)
	}
}

func walkChild(path string, v Value, enter func(string, Module) bool, fn func(string, Module)) {
	switch vv := v.(type) {
	case Child:
		walkModules(path, vv.Module, enter, fn)
	case ValueList:
		for i, el := range vv {
			if el != nil {
				walkChild(path+"."+strconv.Itoa(i), el, enter, fn)
			}
		}
	case ValueMap:
		for _, e := range vv {
			if e.Val != nil {
				walkChild(path+"."+e.Key, e.Val, enter, fn)
			}
		}
	}
}
