package nn

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/weave-ml/weave/ml"
	"github.com/weave-ml/weave/nested"
)

// Update writes replacement tensors into the tree. params is structured
// like (a subset of) Parameters(m): dictionaries follow sub-modules and
// keyed collections, arrays follow positional collections, and None skips a
// slot. Entries that name no member of the module they land in are ignored,
// so a superset checkpoint loads cleanly. An entry that reaches a member of the
// wrong kind, or an array longer than its field, is a structural mismatch
// and panics with the offending path.
//
// A nil member field is filled rather than skipped; loading can populate an
// optional tensor the module was built without.
func Update(m Module, params *nested.Dictionary[ml.Tensor]) {
	updateParams(m, params, "")
}

func updateParams(m Module, params *nested.Dictionary[ml.Tensor], prefix string) {
	v := structOf(m)
	fields := layout(v.Type())

	for _, key := range params.Keys() {
		f, ok := findField(fields, key)
		if !ok {
			continue
		}

		it, _ := params.Get(key)
		setParamMember(v.Field(f.index), f.kind, it, joinPath(prefix, key))
	}
}

func findField(fields []field, name string) (field, bool) {
	for _, f := range fields {
		if f.name == name {
			return f, true
		}
	}

	return field{}, false
}

func setParamMember(fv reflect.Value, kind fieldKind, it nested.Item[ml.Tensor], path string) {
	if _, ok := it.(nested.None[ml.Tensor]); ok {
		return
	}

	switch kind {
	case kindParam:
		setTensor(fv, leafTensor(it, path), path)

	case kindParamList:
		arr, ok := it.(nested.Array[ml.Tensor])
		if !ok {
			panic(fmt.Sprintf("nn: update %s: expected an array, found %s", path, itemKind[ml.Tensor](it)))
		}
		if len(arr) > fv.Len() {
			panic(fmt.Sprintf("nn: update %s: %d replacements for %d elements", path, len(arr), fv.Len()))
		}
		for i, el := range arr {
			if _, none := el.(nested.None[ml.Tensor]); none {
				continue
			}
			ep := path + "." + strconv.Itoa(i)
			setTensor(fv.Index(i), leafTensor(el, ep), ep)
		}

	case kindParamMap:
		d, ok := it.(nested.Dict[ml.Tensor])
		if !ok {
			panic(fmt.Sprintf("nn: update %s: expected a dictionary, found %s", path, itemKind[ml.Tensor](it)))
		}
		if fv.IsNil() {
			fv.Set(reflect.MakeMapWithSize(fv.Type(), d.Len()))
		}
		for _, k := range d.Keys() {
			el, _ := d.Get(k)
			if _, none := el.(nested.None[ml.Tensor]); none {
				continue
			}
			ep := path + "." + k
			t := leafTensor(el, ep)
			tv := reflect.ValueOf(t)
			if t == nil {
				tv = reflect.Zero(fv.Type().Elem())
			} else if !tv.Type().AssignableTo(fv.Type().Elem()) {
				panic(fmt.Sprintf("nn: update %s: %s is not assignable to %s", ep, tv.Type(), fv.Type().Elem()))
			}
			fv.SetMapIndex(reflect.ValueOf(k), tv)
		}

	case kindModule:
		d, ok := it.(nested.Dict[ml.Tensor])
		if !ok {
			panic(fmt.Sprintf("nn: update %s: expected a dictionary for a sub-module, found %s", path, itemKind[ml.Tensor](it)))
		}
		if fv.IsNil() {
			return
		}
		updateParams(fv.Interface().(Module), d.Dictionary, path)

	case kindModuleList:
		arr, ok := it.(nested.Array[ml.Tensor])
		if !ok {
			panic(fmt.Sprintf("nn: update %s: expected an array, found %s", path, itemKind[ml.Tensor](it)))
		}
		if len(arr) > fv.Len() {
			panic(fmt.Sprintf("nn: update %s: %d replacements for %d elements", path, len(arr), fv.Len()))
		}
		for i, el := range arr {
			ep := path + "." + strconv.Itoa(i)
			switch ev := el.(type) {
			case nested.None[ml.Tensor]:
			case nested.Dict[ml.Tensor]:
				if !fv.Index(i).IsNil() {
					updateParams(fv.Index(i).Interface().(Module), ev.Dictionary, ep)
				}
			default:
				panic(fmt.Sprintf("nn: update %s: expected a dictionary for a sub-module, found %s", ep, itemKind[ml.Tensor](el)))
			}
		}

	case kindModuleMap:
		d, ok := it.(nested.Dict[ml.Tensor])
		if !ok {
			panic(fmt.Sprintf("nn: update %s: expected a dictionary, found %s", path, itemKind[ml.Tensor](it)))
		}
		for _, k := range d.Keys() {
			ev := fv.MapIndex(reflect.ValueOf(k))
			if !ev.IsValid() || ev.IsNil() {
				continue
			}
			el, _ := d.Get(k)
			ep := path + "." + k
			ed, ok := el.(nested.Dict[ml.Tensor])
			if !ok {
				if _, none := el.(nested.None[ml.Tensor]); none {
					continue
				}
				panic(fmt.Sprintf("nn: update %s: expected a dictionary for a sub-module, found %s", ep, itemKind[ml.Tensor](el)))
			}
			updateParams(ev.Interface().(Module), ed.Dictionary, ep)
		}

	default:
		panic(fmt.Sprintf("nn: update %s: member is not updatable", path))
	}
}

func leafTensor(it nested.Item[ml.Tensor], path string) ml.Tensor {
	v, ok := it.(nested.Value[ml.Tensor])
	if !ok {
		panic(fmt.Sprintf("nn: update %s: expected a tensor, found %s", path, itemKind[ml.Tensor](it)))
	}

	return v.Val
}

func setTensor(fv reflect.Value, t ml.Tensor, path string) {
	if t == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return
	}

	tv := reflect.ValueOf(t)
	if !tv.Type().AssignableTo(fv.Type()) {
		panic(fmt.Sprintf("nn: update %s: %s is not assignable to %s", path, tv.Type(), fv.Type()))
	}
	fv.Set(tv)
}

func itemKind[T any](it nested.Item[T]) string {
	switch it.(type) {
	case nested.None[T]:
		return "a placeholder"
	case nested.Value[T]:
		return "a leaf"
	case nested.Array[T]:
		return "an array"
	case nested.Dict[T]:
		return "a dictionary"
	}

	return "an unknown item"
}

// UpdateModules replaces sub-modules in place. repl mirrors the module
// structure the way Update's argument mirrors the parameter structure: a
// leaf holds the replacement module, a dictionary descends into an existing
// sub-module, arrays follow positional collections. The replacement's
// concrete type must be assignable to the field that holds it, so swapping
// implementations needs an interface-typed field.
func UpdateModules(m Module, repl *nested.Dictionary[Module]) {
	updateModules(m, repl, "")
}

func updateModules(m Module, repl *nested.Dictionary[Module], prefix string) {
	v := structOf(m)
	fields := layout(v.Type())

	for _, key := range repl.Keys() {
		f, ok := findField(fields, key)
		if !ok {
			continue
		}

		it, _ := repl.Get(key)
		setModuleMember(v.Field(f.index), f.kind, it, joinPath(prefix, key))
	}
}

func setModuleMember(fv reflect.Value, kind fieldKind, it nested.Item[Module], path string) {
	if _, ok := it.(nested.None[Module]); ok {
		return
	}

	switch kind {
	case kindModule:
		switch ev := it.(type) {
		case nested.Value[Module]:
			setModule(fv, ev.Val, path)
		case nested.Dict[Module]:
			if !fv.IsNil() {
				updateModules(fv.Interface().(Module), ev.Dictionary, path)
			}
		default:
			panic(fmt.Sprintf("nn: update %s: expected a module, found %s", path, itemKind[Module](it)))
		}

	case kindModuleList:
		arr, ok := it.(nested.Array[Module])
		if !ok {
			panic(fmt.Sprintf("nn: update %s: expected an array, found %s", path, itemKind(it)))
		}
		if len(arr) > fv.Len() {
			panic(fmt.Sprintf("nn: update %s: %d replacements for %d elements", path, len(arr), fv.Len()))
		}
		for i, el := range arr {
			ep := path + "." + strconv.Itoa(i)
			switch ev := el.(type) {
			case nested.None[Module]:
			case nested.Value[Module]:
				setModule(fv.Index(i), ev.Val, ep)
			case nested.Dict[Module]:
				if !fv.Index(i).IsNil() {
					updateModules(fv.Index(i).Interface().(Module), ev.Dictionary, ep)
				}
			}
		}

	case kindModuleMap:
		d, ok := it.(nested.Dict[Module])
		if !ok {
			panic(fmt.Sprintf("nn: update %s: expected a dictionary, found %s", path, itemKind(it)))
		}
		for _, k := range d.Keys() {
			el, _ := d.Get(k)
			ep := path + "." + k
			switch ev := el.(type) {
			case nested.None[Module]:
			case nested.Value[Module]:
				mv := reflect.ValueOf(ev.Val)
				if !mv.Type().AssignableTo(fv.Type().Elem()) {
					panic(fmt.Sprintf("nn: update %s: %s is not assignable to %s", ep, mv.Type(), fv.Type().Elem()))
				}
				if fv.IsNil() {
					fv.Set(reflect.MakeMapWithSize(fv.Type(), d.Len()))
				}
				fv.SetMapIndex(reflect.ValueOf(k), mv)
			case nested.Dict[Module]:
				mv := fv.MapIndex(reflect.ValueOf(k))
				if mv.IsValid() && !mv.IsNil() {
					updateModules(mv.Interface().(Module), ev.Dictionary, ep)
				}
			}
		}

	default:
		panic(fmt.Sprintf("nn: update %s: member is not a module", path))
	}
}

func setModule(fv reflect.Value, mod Module, path string) {
	if mod == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return
	}

	mv := reflect.ValueOf(mod)
	if !mv.Type().AssignableTo(fv.Type()) {
		panic(fmt.Sprintf("nn: update %s: %s is not assignable to %s", path, mv.Type(), fv.Type()))
	}
	fv.Set(mv)
}

// Apply rewrites the selected parameters in place through fn, for example
// casting everything to half precision. A nil filter selects every
// parameter.
func Apply(m Module, filter FilterFunc, fn func(ml.Tensor) ml.Tensor) {
	if filter == nil {
		filter = FilterValidParameters
	}

	Update(m, FilterMap(m, filter, func(v Value) (ml.Tensor, bool) {
		p, ok := v.(Param)
		if !ok {
			return nil, false
		}
		return fn(p.Tensor), true
	}, nil))
}
