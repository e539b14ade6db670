// Package nn represents a neural network as a tree of modules: structs whose
// exported fields hold tensor parameters, sub-modules, collections of either,
// and configuration scalars. Free functions traverse the tree (Parameters,
// Children, FilterMap), write it back (Update), and toggle node state
// (Freeze, Train).
//
// A module is a pointer to a struct embedding Base. Field names become tree
// labels, lowercased at word boundaries ("OutputProj" is "output_proj"); an
// `nn:"name"` tag overrides the label and `nn:"-"` hides the field.
// Unexported fields are invisible to traversal. Assigning one module value
// into two parents ties the weights: both paths resolve to the same node and
// updates through either are visible through both.
package nn

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/weave-ml/weave/ml"
)

// Module is implemented by embedding Base in a pointer-receiver struct. The
// interface is sealed: the embedded Base supplies the one unexported method.
type Module interface {
	base() *Base
}

// Base carries the per-node runtime state shared by every module: the
// training flag and the set of frozen member paths. The zero value is a
// trainable node in training mode.
type Base struct {
	eval   bool
	frozen map[string]struct{}
}

func (b *Base) base() *Base { return b }

// Training reports whether the node is in training mode.
func (b *Base) Training() bool { return !b.eval }

func (b *Base) freeze(keys []string) {
	if len(keys) == 0 {
		return
	}

	if b.frozen == nil {
		b.frozen = make(map[string]struct{}, len(keys))
	}
	for _, k := range keys {
		b.frozen[k] = struct{}{}
	}
}

func (b *Base) unfreeze(keys []string) {
	for _, k := range keys {
		delete(b.frozen, k)
	}
}

func (b *Base) isFrozen(key string) bool {
	_, ok := b.frozen[key]
	return ok
}

type fieldKind int

const (
	kindParam fieldKind = iota
	kindParamList
	kindParamMap
	kindModule
	kindModuleList
	kindModuleMap
	kindOther
	kindSkip
)

type field struct {
	index int
	name  string
	kind  fieldKind
}

var layouts sync.Map // reflect.Type -> []field

var (
	tensorType = reflect.TypeOf((*ml.Tensor)(nil)).Elem()
	moduleType = reflect.TypeOf((*Module)(nil)).Elem()
	baseType   = reflect.TypeOf(Base{})
)

// layout classifies a struct type's fields once and caches the result; the
// current field values are re-read on every traversal.
func layout(t reflect.Type) []field {
	if v, ok := layouts.Load(t); ok {
		return v.([]field)
	}

	var fields []field
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Type == baseType {
			continue
		}

		name := snakeCase(f.Name)
		if tag := f.Tag.Get("nn"); tag != "" {
			if tag == "-" {
				continue
			}

			name = tag
		}

		if kind := kindOf(f.Type); kind != kindSkip {
			fields = append(fields, field{index: i, name: name, kind: kind})
		}
	}

	v, _ := layouts.LoadOrStore(t, fields)
	return v.([]field)
}

func kindOf(t reflect.Type) fieldKind {
	if t.Implements(tensorType) {
		return kindParam
	}
	if t.Implements(moduleType) {
		return kindModule
	}

	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		switch kindOf(t.Elem()) {
		case kindParam:
			return kindParamList
		case kindModule:
			return kindModuleList
		}
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return kindSkip
		}
		switch kindOf(t.Elem()) {
		case kindParam:
			return kindParamMap
		case kindModule:
			return kindModuleMap
		}
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return kindOther
	}

	return kindSkip
}

func structOf(m Module) reflect.Value {
	v := reflect.ValueOf(m)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("nn: %T is not a pointer to a module struct", m))
	}

	return v.Elem()
}

func snakeCase(s string) string {
	var sb strings.Builder
	rs := []rune(s)
	for i, r := range rs {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(rs[i-1]) || (i+1 < len(rs) && unicode.IsLower(rs[i+1]))) {
				sb.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		sb.WriteRune(r)
	}

	return sb.String()
}

func canNil(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return true
	}

	return false
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}

	return prefix + "." + key
}
