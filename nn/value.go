package nn

import (
	"reflect"
	"slices"

	"github.com/weave-ml/weave/ml"
)

// Value classifies one module member for traversal. The variants are Param
// (a tensor), ValueList (positional members, nil marking empty slots),
// ValueMap (labeled members in sorted key order), Child (a sub-module), and
// Other (a configuration scalar).
type Value interface {
	value()
}

// Param is a tensor-valued member.
type Param struct {
	Tensor ml.Tensor
}

// ValueList holds positional members. A nil element marks a slot whose
// field entry was nil; it keeps later indices stable.
type ValueList []Value

// MapEntry is one labeled member of a ValueMap.
type MapEntry struct {
	Key string
	Val Value
}

// ValueMap holds labeled members in sorted key order.
type ValueMap []MapEntry

// Child is a sub-module member.
type Child struct {
	Module Module
}

// Other is a configuration scalar attached to the node. Val is one of
// bool, int64, float64, or string. Others are listed by traversal but never
// recursed into and never updated.
type Other struct {
	Val any
}

func (Param) value()     {}
func (ValueList) value() {}
func (ValueMap) value()  {}
func (Child) value()     {}
func (Other) value()     {}

// Member is one named member of a module.
type Member struct {
	Name string
	Val  Value
}

// Items lists the module's own members in field declaration order. Members
// whose field is nil, or whose collection holds no non-nil entry, are
// omitted; sub-module contents are not expanded.
func Items(m Module) []Member {
	v := structOf(m)

	var members []Member
	for _, f := range layout(v.Type()) {
		if val, ok := classify(f.kind, v.Field(f.index)); ok {
			members = append(members, Member{Name: f.name, Val: val})
		}
	}

	return members
}

func classify(kind fieldKind, v reflect.Value) (Value, bool) {
	switch kind {
	case kindParam:
		if canNil(v.Type()) && v.IsNil() {
			return nil, false
		}
		return Param{Tensor: v.Interface().(ml.Tensor)}, true

	case kindModule:
		if canNil(v.Type()) && v.IsNil() {
			return nil, false
		}
		return Child{Module: v.Interface().(Module)}, true

	case kindParamList, kindModuleList:
		if v.Len() == 0 {
			return nil, false
		}

		list := make(ValueList, v.Len())
		found := false
		for i := 0; i < v.Len(); i++ {
			ev := v.Index(i)
			if canNil(ev.Type()) && ev.IsNil() {
				continue
			}

			if kind == kindParamList {
				list[i] = Param{Tensor: ev.Interface().(ml.Tensor)}
			} else {
				list[i] = Child{Module: ev.Interface().(Module)}
			}
			found = true
		}
		if !found {
			return nil, false
		}
		return list, true

	case kindParamMap, kindModuleMap:
		if v.Len() == 0 {
			return nil, false
		}

		keys := make([]string, 0, v.Len())
		for _, kv := range v.MapKeys() {
			keys = append(keys, kv.String())
		}
		slices.Sort(keys)

		vm := make(ValueMap, 0, len(keys))
		found := false
		for _, k := range keys {
			ev := v.MapIndex(reflect.ValueOf(k))
			entry := MapEntry{Key: k}
			if !canNil(ev.Type()) || !ev.IsNil() {
				if kind == kindParamMap {
					entry.Val = Param{Tensor: ev.Interface().(ml.Tensor)}
				} else {
					entry.Val = Child{Module: ev.Interface().(Module)}
				}
				found = true
			}
			vm = append(vm, entry)
		}
		if !found {
			return nil, false
		}
		return vm, true

	case kindOther:
		return Other{Val: scalarOf(v)}, true
	}

	return nil, false
}

func scalarOf(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(v.Uint())
	case reflect.Float32, reflect.Float64:
		return v.Float()
	case reflect.String:
		return v.String()
	}

	return nil
}
