package nn

import (
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strconv"

	"github.com/weave-ml/weave/ml"
	"github.com/weave-ml/weave/nested"
)

// Quantize replaces every Linear and Embedding below m with its quantized
// counterpart. A layer can only be swapped when the field holding it
// accepts the new type, so replaceable layers live in interface-typed
// fields, slices, or maps; a layer pinned by a concrete field type is left
// alone and logged. Already quantized layers are untouched, making
// Quantize idempotent.
func Quantize(ctx ml.Context, m Module, groupSize, bits int) error {
	repl := nested.NewDictionary[Module]()
	if err := collectQuantized(ctx, m, "", groupSize, bits, repl); err != nil {
		return err
	}

	UpdateModules(m, repl)
	return nil
}

func collectQuantized(ctx ml.Context, m Module, prefix string, groupSize, bits int, repl *nested.Dictionary[Module]) error {
	v := structOf(m)

	for _, f := range layout(v.Type()) {
		fv := v.Field(f.index)
		path := joinPath(prefix, f.name)

		switch f.kind {
		case kindModule:
			if err := quantizeSite(ctx, fv, fv.Type(), path, groupSize, bits, repl); err != nil {
				return err
			}

		case kindModuleList:
			for i := 0; i < fv.Len(); i++ {
				ep := path + "." + strconv.Itoa(i)
				if err := quantizeSite(ctx, fv.Index(i), fv.Type().Elem(), ep, groupSize, bits, repl); err != nil {
					return err
				}
			}

		case kindModuleMap:
			keys := make([]string, 0, fv.Len())
			for _, kv := range fv.MapKeys() {
				keys = append(keys, kv.String())
			}
			slices.Sort(keys)

			for _, k := range keys {
				ev := fv.MapIndex(reflect.ValueOf(k))
				if err := quantizeSite(ctx, ev, fv.Type().Elem(), path+"."+k, groupSize, bits, repl); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func quantizeSite(ctx ml.Context, fv reflect.Value, siteType reflect.Type, path string, groupSize, bits int, repl *nested.Dictionary[Module]) error {
	if fv.IsNil() {
		return nil
	}
	child := fv.Interface().(Module)

	q, err := quantized(ctx, child, groupSize, bits)
	if err != nil {
		return fmt.Errorf("quantize %s: %w", path, err)
	}
	if q == nil {
		return collectQuantized(ctx, child, path, groupSize, bits, repl)
	}

	if !reflect.TypeOf(q).AssignableTo(siteType) {
		slog.Warn("cannot quantize layer held by concrete field", "path", path, "type", siteType)
		return nil
	}

	slog.Debug("quantizing layer", "path", path, "group_size", groupSize, "bits", bits)
	repl.SetPath(path, nested.Value[Module]{Val: q})
	return nil
}

func quantized(ctx ml.Context, m Module, groupSize, bits int) (Module, error) {
	switch l := m.(type) {
	case *Linear:
		q, err := NewQuantizedLinear(ctx, l, groupSize, bits)
		if err != nil {
			return nil, err
		}
		return q, nil
	case *Embedding:
		q, err := NewQuantizedEmbedding(ctx, l, groupSize, bits)
		if err != nil {
			return nil, err
		}
		return q, nil
	}

	return nil, nil
}
