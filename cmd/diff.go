package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/weave-ml/weave/format"
	"github.com/weave-ml/weave/weights"
)

func NewDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff FILE FILE",
		Short: "Compare the tensors in two safetensors files",
		Args:  cobra.ExactArgs(2),
		RunE:  diffHandler,
	}
}

func diffHandler(cmd *cobra.Command, args []string) error {
	a, err := weights.Open(args[0])
	if err != nil {
		return err
	}
	defer a.Close()

	b, err := weights.Open(args[1])
	if err != nil {
		return err
	}
	defer b.Close()

	diffFiles(os.Stdout, a, b)
	return nil
}

// diffFiles lists tensors only in a as removed, tensors only in b as added,
// and tensors whose dtype or shape changed. Tensor data is not compared.
func diffFiles(w io.Writer, a, b *weights.File) {
	av := make(map[string]weights.Info)
	for _, info := range a.Infos() {
		av[info.Name] = info
	}

	bv := make(map[string]weights.Info)
	for _, info := range b.Infos() {
		bv[info.Name] = info
	}

	seen := make(map[string]struct{})
	for name := range av {
		seen[name] = struct{}{}
	}
	for name := range bv {
		seen[name] = struct{}{}
	}

	names := maps.Keys(seen)
	slices.Sort(names)

	for _, name := range names {
		ai, inA := av[name]
		bi, inB := bv[name]

		switch {
		case !inB:
			fmt.Fprintf(w, "- %s %s %s\n", name, ai.DType, format.Shape(ai.Shape))
		case !inA:
			fmt.Fprintf(w, "+ %s %s %s\n", name, bi.DType, format.Shape(bi.Shape))
		case ai.DType != bi.DType || !slices.Equal(ai.Shape, bi.Shape):
			fmt.Fprintf(w, "! %s %s %s -> %s %s\n", name,
				ai.DType, format.Shape(ai.Shape),
				bi.DType, format.Shape(bi.Shape))
		}
	}
}
