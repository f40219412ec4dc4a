package main

import (
	"fmt"
	"os"

	"github.com/EpiK-Protocol/go-epik-vesting/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
