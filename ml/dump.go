package ml

import (
	"fmt"
	"strings"
)

type DumpOptions struct {
	// Items is the number of elements to print at the beginning and end of each dimension.
	Items int64

	// Precision is the number of decimal places to print for floating dtypes.
	Precision int
}

// Dump renders a tensor for debugging, eliding the middle of large
// dimensions. Values are read back through Floats, so every dtype the
// backend can decode is printable.
func Dump(t Tensor, opts ...DumpOptions) string {
	if len(opts) < 1 {
		opts = append(opts, DumpOptions{
			Items:     3,
			Precision: 4,
		})
	}

	if t == nil {
		return "<nil>"
	}

	s := t.Floats()
	if s == nil {
		return "<nil>"
	}

	verb := fmt.Sprintf("%%.%df", opts[0].Precision)
	if t.DType() == DTypeI32 {
		verb = "%.0f"
	}

	shape := t.Shape()
	if len(shape) == 0 {
		return fmt.Sprintf(verb, s[0])
	}

	var sb strings.Builder
	var f func(dims []int64, stride int64)
	f = func(dims []int64, stride int64) {
		prefix := strings.Repeat(" ", len(shape)-len(dims)+1)
		fmt.Fprint(&sb, "[")
		defer func() { fmt.Fprint(&sb, "]") }()

		inner := int64(1)
		for _, d := range dims[1:] {
			inner *= d
		}

		for i := int64(0); i < dims[0]; i++ {
			if i >= opts[0].Items && i < dims[0]-opts[0].Items {
				fmt.Fprint(&sb, "..., ")
				skip := dims[0] - 2*opts[0].Items
				if len(dims) > 1 {
					fmt.Fprint(&sb, strings.Repeat("\n", len(dims)-1), prefix)
				}
				i += skip - 1
				continue
			}

			if len(dims) > 1 {
				f(dims[1:], stride+i*inner)
				if i < dims[0]-1 {
					fmt.Fprint(&sb, ",", strings.Repeat("\n", len(dims)-1), prefix)
				}
			} else {
				fmt.Fprintf(&sb, verb, s[stride+i])
				if i < dims[0]-1 {
					fmt.Fprint(&sb, ", ")
				}
			}
		}
	}
	f(shape, 0)

	return sb.String()
}
