package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/constguard/internal/cli"
)

func main() {
	rootCmd := cli.NewRootCommand()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
