package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/weave-ml/weave/envconfig"
	"github.com/weave-ml/weave/format"
	"github.com/weave-ml/weave/ml"
	_ "github.com/weave-ml/weave/ml/backend/simple"
	"github.com/weave-ml/weave/nested"
	"github.com/weave-ml/weave/progress"
	"github.com/weave-ml/weave/weights"
)

func NewQuantizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quantize FILE FILE",
		Short: "Quantize the weight tensors of a safetensors file",
		Args:  cobra.ExactArgs(2),
		RunE:  quantizeHandler,
	}

	cmd.Flags().Int("group-size", 64, "Elements per quantization group")
	cmd.Flags().Int("bits", 4, "Bits per quantized element")

	return cmd
}

func quantizeHandler(cmd *cobra.Command, args []string) error {
	groupSize, err := cmd.Flags().GetInt("group-size")
	if err != nil {
		return err
	}

	bits, err := cmd.Flags().GetInt("bits")
	if err != nil {
		return err
	}

	backend, err := ml.NewBackend(envconfig.Backend)
	if err != nil {
		return err
	}

	var p *progress.Progress
	if term.IsTerminal(int(os.Stderr.Fd())) && !envconfig.NoProgress {
		p = progress.NewProgress(os.Stderr)
		defer p.Stop()
	}

	var bar *progress.Bar
	stats, err := quantizeFile(backend.NewContext(), args[0], args[1], groupSize, bits, func(done, total int64) {
		if p == nil {
			return
		}

		if bar == nil {
			bar = progress.NewBar(fmt.Sprintf("quantizing %s", args[0]), total)
			p.Add(bar)
		}

		bar.Set(done)
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "quantized %d of %d tensors, %s to %s\n",
		stats.quantized, stats.tensors,
		format.HumanBytes(stats.inBytes), format.HumanBytes(stats.outBytes))

	return nil
}

type quantizeStats struct {
	tensors   int
	quantized int
	inBytes   int64
	outBytes  int64
}

// quantizeFile rewrites in as out, replacing every floating weight matrix
// whose columns divide evenly into groups with its quantized form plus
// sibling scales and biases tensors. Everything else is copied through
// unchanged. fn reports tensors processed against the total.
func quantizeFile(ctx ml.Context, in, out string, groupSize, bits int, fn func(done, total int64)) (quantizeStats, error) {
	var stats quantizeStats

	f, err := weights.Open(in)
	if err != nil {
		return stats, err
	}
	defer f.Close()

	infos := f.Infos()
	stats.tensors = len(infos)

	tree := nested.NewDictionary[ml.Tensor]()
	put := func(path string, t ml.Tensor) {
		stats.outBytes += t.NumElements() * t.DType().Size()
		tree.SetPath(path, nested.Value[ml.Tensor]{Val: t})
	}

	for i, info := range infos {
		t, err := f.Tensor(ctx, info.Name)
		if err != nil {
			return stats, err
		}

		stats.inBytes += t.NumElements() * t.DType().Size()

		if quantizable(info, groupSize) {
			wq, scales, biases, err := ctx.Quantize(t, groupSize, bits)
			if err != nil {
				return stats, fmt.Errorf("quantize %s: %w", info.Name, err)
			}

			base := strings.TrimSuffix(info.Name, "weight")
			put(info.Name, wq)
			put(base+"scales", scales)
			put(base+"biases", biases)
			stats.quantized++
		} else {
			put(info.Name, t)
		}

		fn(int64(i+1), int64(len(infos)))
	}

	meta := make(map[string]string, len(f.Metadata())+2)
	for k, v := range f.Metadata() {
		meta[k] = v
	}
	meta["quantization.group_size"] = strconv.Itoa(groupSize)
	meta["quantization.bits"] = strconv.Itoa(bits)

	if err := weights.Save(out, tree, meta); err != nil {
		return stats, err
	}

	return stats, nil
}

// quantizable reports whether a tensor is a weight matrix the quantizer can
// take: floating point, two dimensional, columns divisible by the group
// size. Vectors such as biases and norm gains stay in full precision.
func quantizable(info weights.Info, groupSize int) bool {
	return strings.HasSuffix(info.Name, "weight") &&
		info.DType.IsFloat() &&
		len(info.Shape) == 2 &&
		groupSize > 0 &&
		info.Shape[1]%int64(groupSize) == 0
}
