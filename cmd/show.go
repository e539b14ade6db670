package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/weave-ml/weave/format"
	"github.com/weave-ml/weave/weights"
)

func NewShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show FILE",
		Short: "Show the tensors in a safetensors file",
		Args:  cobra.ExactArgs(1),
		RunE:  showHandler,
	}
}

func showHandler(cmd *cobra.Command, args []string) error {
	f, err := weights.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	return showFile(os.Stdout, f)
}

func showFile(w io.Writer, f *weights.File) error {
	var params uint64
	var size int64

	var data [][]string
	for _, info := range f.Infos() {
		n := int64(1)
		for _, d := range info.Shape {
			n *= d
		}

		params += uint64(n)
		size += n * info.DType.Size()

		data = append(data, []string{
			info.Name,
			info.DType.String(),
			format.Shape(info.Shape),
			format.HumanBytes(n * info.DType.Size()),
		})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"NAME", "DTYPE", "SHAPE", "SIZE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	fmt.Fprintf(w, "\n%d tensors, %s parameters, %s\n", len(data), format.HumanNumber(params), format.HumanBytes(size))

	if meta := f.Metadata(); len(meta) > 0 {
		keys := maps.Keys(meta)
		slices.Sort(keys)

		fmt.Fprintln(w)
		for _, k := range keys {
			fmt.Fprintf(w, "%s: %s\n", k, meta[k])
		}
	}

	return nil
}
