package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/weave-ml/weave/cmd"
)

func main() {
	cobra.CheckErr(cmd.NewCLI().ExecuteContext(context.Background()))
}
