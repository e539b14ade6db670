package ml

import "fmt"

type DType int

const (
	DTypeF32 DType = iota
	DTypeF16
	DTypeBF16
	DTypeI32
)

// Size returns the width of one element in bytes.
func (d DType) Size() int64 {
	switch d {
	case DTypeF16, DTypeBF16:
		return 2
	case DTypeF32, DTypeI32:
		return 4
	default:
		return 0
	}
}

// IsFloat reports whether the dtype holds floating point values.
func (d DType) IsFloat() bool {
	switch d {
	case DTypeF32, DTypeF16, DTypeBF16:
		return true
	default:
		return false
	}
}

// String returns the safetensors spelling of the dtype.
func (d DType) String() string {
	switch d {
	case DTypeF32:
		return "F32"
	case DTypeF16:
		return "F16"
	case DTypeBF16:
		return "BF16"
	case DTypeI32:
		return "I32"
	default:
		return fmt.Sprintf("DType(%d)", int(d))
	}
}

// ParseDType is the inverse of String.
func ParseDType(s string) (DType, error) {
	switch s {
	case "F32":
		return DTypeF32, nil
	case "F16":
		return DTypeF16, nil
	case "BF16":
		return DTypeBF16, nil
	case "I32":
		return DTypeI32, nil
	default:
		return 0, fmt.Errorf("ml: unsupported dtype %q", s)
	}
}
