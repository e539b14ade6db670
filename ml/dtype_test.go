package ml

import "testing"

func TestDTypeString(t *testing.T) {
	cases := map[DType]string{
		DTypeF32:  "F32",
		DTypeF16:  "F16",
		DTypeBF16: "BF16",
		DTypeI32:  "I32",
	}

	for dtype, want := range cases {
		if got := dtype.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(dtype), got, want)
		}

		parsed, err := ParseDType(want)
		if err != nil {
			t.Fatalf("ParseDType(%q): %v", want, err)
		}

		if parsed != dtype {
			t.Errorf("ParseDType(%q) = %v, want %v", want, parsed, dtype)
		}
	}

	if _, err := ParseDType("F64"); err == nil {
		t.Error("ParseDType(\"F64\") did not fail")
	}
}

func TestDTypeSize(t *testing.T) {
	cases := map[DType]int64{
		DTypeF32:  4,
		DTypeF16:  2,
		DTypeBF16: 2,
		DTypeI32:  4,
	}

	for dtype, want := range cases {
		if got := dtype.Size(); got != want {
			t.Errorf("%s.Size() = %d, want %d", dtype, got, want)
		}
	}
}

func TestDTypeIsFloat(t *testing.T) {
	for _, dtype := range []DType{DTypeF32, DTypeF16, DTypeBF16} {
		if !dtype.IsFloat() {
			t.Errorf("%s.IsFloat() = false", dtype)
		}
	}

	if DTypeI32.IsFloat() {
		t.Error("I32.IsFloat() = true")
	}
}
