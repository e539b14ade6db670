// Package cmd implements the weave command line interface for inspecting
// and transforming safetensors checkpoints.
package cmd

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/weave-ml/weave/envconfig"
	"github.com/weave-ml/weave/logutil"
	"github.com/weave-ml/weave/version"
)

func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))

	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:     "weave",
		Short:   "Inspect and transform model checkpoints",
		Version: version.Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
		},
	}
	rootCmd.SetVersionTemplate("weave version is {{.Version}}\n")

	rootCmd.AddCommand(
		NewShowCmd(),
		NewDiffCmd(),
		NewQuantizeCmd(),
		NewEnvCmd(),
		NewVersionCmd(),
	)

	return rootCmd
}

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("weave version is", version.Version)
		},
	}
}

func NewEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show weave environment variables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeEnv(os.Stdout)
		},
	}
}

func writeEnv(w io.Writer) error {
	vars := envconfig.AsMap()

	names := maps.Keys(vars)
	slices.Sort(names)

	var data [][]string
	for _, name := range names {
		v := vars[name]
		data = append(data, []string{v.Name, fmt.Sprintf("%v", v.Value), v.Description})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"NAME", "VALUE", "DESCRIPTION"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	return nil
}
