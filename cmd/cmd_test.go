package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/weave-ml/weave/ml"
	_ "github.com/weave-ml/weave/ml/backend/simple"
	"github.com/weave-ml/weave/nested"
	"github.com/weave-ml/weave/version"
	"github.com/weave-ml/weave/weights"
)

func testContext(t *testing.T) ml.Context {
	t.Helper()

	b, err := ml.NewBackend("simple")
	require.NoError(t, err)
	return b.NewContext()
}

func fromFloats(t *testing.T, ctx ml.Context, vals []float32, shape ...int64) ml.Tensor {
	t.Helper()

	x, err := ctx.FromFloatSlice(vals, shape...)
	require.NoError(t, err)
	return x
}

func saveFixture(t *testing.T, path string, metadata map[string]string, tensors map[string]ml.Tensor) {
	t.Helper()

	tree := nested.NewDictionary[ml.Tensor]()

	names := maps.Keys(tensors)
	slices.Sort(names)
	for _, name := range names {
		tree.SetPath(name, nested.Value[ml.Tensor]{Val: tensors[name]})
	}

	require.NoError(t, weights.Save(path, tree, metadata))
}

func seq(n int) []float32 {
	vals := make([]float32, n)
	for i := range vals {
		vals[i] = float32(i)
	}
	return vals
}

func TestShowFile(t *testing.T) {
	ctx := testContext(t)
	path := filepath.Join(t.TempDir(), "model.safetensors")

	saveFixture(t, path, map[string]string{"format": "weave"}, map[string]ml.Tensor{
		"fc.weight":   fromFloats(t, ctx, seq(6), 2, 3),
		"fc.bias":     fromFloats(t, ctx, []float32{0.5, -0.5}, 2),
		"norm.weight": fromFloats(t, ctx, []float32{1, 1, 1}, 3),
	})

	f, err := weights.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var b bytes.Buffer
	require.NoError(t, showFile(&b, f))

	out := b.String()
	for _, want := range []string{
		"NAME", "DTYPE", "SHAPE", "SIZE",
		"fc.weight", "F32", "2x3", "24 B",
		"fc.bias", "norm.weight",
		"3 tensors, 11 parameters, 44 B",
		"format: weave",
	} {
		require.Contains(t, out, want)
	}
}

func TestDiffFiles(t *testing.T) {
	ctx := testContext(t)
	dir := t.TempDir()

	before := filepath.Join(dir, "before.safetensors")
	saveFixture(t, before, nil, map[string]ml.Tensor{
		"w":   fromFloats(t, ctx, seq(8), 2, 4),
		"b":   fromFloats(t, ctx, seq(4), 4),
		"old": fromFloats(t, ctx, seq(2), 2),
	})

	after := filepath.Join(dir, "after.safetensors")
	saveFixture(t, after, nil, map[string]ml.Tensor{
		"w":   fromFloats(t, ctx, seq(8), 2, 4).Cast(ml.DTypeF16),
		"b":   fromFloats(t, ctx, seq(4), 4),
		"new": fromFloats(t, ctx, seq(3), 3),
	})

	a, err := weights.Open(before)
	require.NoError(t, err)
	defer a.Close()

	b, err := weights.Open(after)
	require.NoError(t, err)
	defer b.Close()

	var buf bytes.Buffer
	diffFiles(&buf, a, b)

	require.Equal(t,
		"+ new F32 3\n"+
			"- old F32 2\n"+
			"! w F32 2x4 -> F16 2x4\n",
		buf.String())

	t.Run("identical", func(t *testing.T) {
		var buf bytes.Buffer
		diffFiles(&buf, a, a)
		require.Empty(t, buf.String())
	})
}

func TestQuantizeFile(t *testing.T) {
	ctx := testContext(t)
	dir := t.TempDir()

	in := filepath.Join(dir, "in.safetensors")
	saveFixture(t, in, map[string]string{"format": "weave"}, map[string]ml.Tensor{
		"fc.weight":   fromFloats(t, ctx, seq(16), 2, 8),
		"fc.bias":     fromFloats(t, ctx, []float32{0.5, -0.5}, 2),
		"emb.weight":  fromFloats(t, ctx, seq(16), 4, 4),
		"norm.weight": fromFloats(t, ctx, []float32{1, 1, 1, 1, 1, 1, 1, 1}, 8),
	})

	out := filepath.Join(dir, "out.safetensors")

	var lastDone, lastTotal int64
	stats, err := quantizeFile(ctx, in, out, 4, 4, func(done, total int64) {
		lastDone, lastTotal = done, total
	})
	require.NoError(t, err)

	require.Equal(t, 4, stats.tensors)
	require.Equal(t, 2, stats.quantized)
	require.EqualValues(t, 4, lastDone)
	require.EqualValues(t, 4, lastTotal)

	f, err := weights.Open(out)
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, []string{
		"emb.biases", "emb.scales", "emb.weight",
		"fc.bias", "fc.biases", "fc.scales", "fc.weight",
		"norm.weight",
	}, f.Names())

	require.Equal(t, map[string]string{
		"format":                  "weave",
		"quantization.group_size": "4",
		"quantization.bits":       "4",
	}, f.Metadata())

	wq, err := f.Tensor(ctx, "fc.weight")
	require.NoError(t, err)
	require.Equal(t, ml.DTypeI32, wq.DType())

	scales, err := f.Tensor(ctx, "fc.scales")
	require.NoError(t, err)
	require.Equal(t, []int64{2, 2}, scales.Shape())

	biases, err := f.Tensor(ctx, "fc.biases")
	require.NoError(t, err)

	// the fixture values sit exactly on the quantization grid
	deq, err := ctx.Dequantize(wq, scales, biases, 4, 4)
	require.NoError(t, err)
	require.InDeltaSlice(t, seq(16), deq.Floats(), 1e-6)

	norm, err := f.Tensor(ctx, "norm.weight")
	require.NoError(t, err)
	require.Equal(t, ml.DTypeF32, norm.DType())

	t.Run("already quantized", func(t *testing.T) {
		again := filepath.Join(dir, "again.safetensors")
		stats, err := quantizeFile(ctx, out, again, 4, 4, func(done, total int64) {})
		require.NoError(t, err)
		require.Zero(t, stats.quantized)
	})

	t.Run("bad bits", func(t *testing.T) {
		_, err := quantizeFile(ctx, in, filepath.Join(dir, "bad.safetensors"), 4, 3, func(done, total int64) {})
		require.ErrorContains(t, err, "unsupported bit width")
	})
}

func TestQuantizeCmdDefaults(t *testing.T) {
	cmd := NewQuantizeCmd()

	groupSize, err := cmd.Flags().GetInt("group-size")
	require.NoError(t, err)
	require.Equal(t, 64, groupSize)

	bits, err := cmd.Flags().GetInt("bits")
	require.NoError(t, err)
	require.Equal(t, 4, bits)
}

func TestWriteEnv(t *testing.T) {
	var b bytes.Buffer
	require.NoError(t, writeEnv(&b))

	out := b.String()
	for _, want := range []string{
		"NAME", "VALUE", "DESCRIPTION",
		"WEAVE_BACKEND", "WEAVE_DEBUG", "WEAVE_NOPROGRESS",
		"Show debug information",
	} {
		require.Contains(t, out, want)
	}
}

func TestVersionCmd(t *testing.T) {
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	cli := NewCLI()
	cli.SetArgs([]string{"version"})
	execErr := cli.Execute()

	w.Close()
	os.Stdout = oldStdout
	require.NoError(t, execErr)

	var out bytes.Buffer
	_, err = io.Copy(&out, r)
	require.NoError(t, err)

	require.Equal(t, "weave version is "+version.Version+"\n", out.String())
}
