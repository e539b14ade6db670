package simple

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/weave-ml/weave/ml"
)

func TestQuantizeRoundTrip(t *testing.T) {
	ctx := testContext(t)

	// values on the quantization grid survive the round trip exactly
	vals := make([]float32, 16)
	for i := range vals {
		vals[i] = float32(i)
	}
	x := fromFloats(t, ctx, vals, 2, 8)

	for _, bits := range []int{2, 4, 8} {
		wq, scales, biases, err := ctx.Quantize(x, 4, bits)
		if err != nil {
			t.Fatalf("bits=%d: %v", bits, err)
		}

		if wq.DType() != ml.DTypeI32 {
			t.Errorf("bits=%d: wq dtype = %s, want I32", bits, wq.DType())
		}

		if diff := cmp.Diff([]int64{2, 2}, scales.Shape()); diff != "" {
			t.Errorf("bits=%d: unexpected scales shape (-want +got):\n%s", bits, diff)
		}

		back, err := ctx.Dequantize(wq, scales, biases, 4, bits)
		if err != nil {
			t.Fatalf("bits=%d: %v", bits, err)
		}

		if diff := cmp.Diff(vals, back.Floats(), cmpopts.EquateApprox(0, 1e-5)); diff != "" {
			t.Errorf("bits=%d: unexpected values (-want +got):\n%s", bits, diff)
		}
	}
}

func TestQuantizeConstantGroup(t *testing.T) {
	ctx := testContext(t)

	// a zero-range group quantizes to its bias
	x := fromFloats(t, ctx, []float32{5, 5, 5, 5}, 1, 4)

	wq, scales, biases, err := ctx.Quantize(x, 4, 4)
	if err != nil {
		t.Fatal(err)
	}

	back, err := ctx.Dequantize(wq, scales, biases, 4, 4)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]float32{5, 5, 5, 5}, back.Floats()); diff != "" {
		t.Errorf("unexpected values (-want +got):\n%s", diff)
	}
}

func TestQuantizeErrors(t *testing.T) {
	ctx := testContext(t)

	x := fromFloats(t, ctx, []float32{1, 2, 3, 4, 5, 6, 7, 8}, 2, 4)

	cases := []struct {
		name string
		run  func() error
		want string
	}{
		{
			"not 2d",
			func() error {
				flat := fromFloats(t, ctx, []float32{1, 2, 3, 4}, 4)
				_, _, _, err := ctx.Quantize(flat, 4, 4)
				return err
			},
			"need 2 dimensions",
		},
		{
			"bad bits",
			func() error {
				_, _, _, err := ctx.Quantize(x, 4, 3)
				return err
			},
			"unsupported bit width",
		},
		{
			"group does not divide",
			func() error {
				_, _, _, err := ctx.Quantize(x, 3, 4)
				return err
			},
			"does not divide",
		},
		{
			"integer input",
			func() error {
				ints, err := ctx.FromIntSlice([]int32{1, 2, 3, 4}, 2, 2)
				if err != nil {
					return err
				}
				_, _, _, err = ctx.Quantize(ints, 2, 4)
				return err
			},
			"cannot quantize",
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if err == nil {
				t.Fatal("expected error")
			}

			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestDequantizeMismatchedState(t *testing.T) {
	ctx := testContext(t)

	x := fromFloats(t, ctx, []float32{1, 2, 3, 4, 5, 6, 7, 8}, 2, 4)
	wq, scales, _, err := ctx.Quantize(x, 4, 4)
	if err != nil {
		t.Fatal(err)
	}

	short := fromFloats(t, ctx, []float32{1}, 1)
	if _, err := ctx.Dequantize(wq, scales, short, 4, 4); err == nil {
		t.Error("mismatched biases did not fail")
	}
}
