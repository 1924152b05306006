// Command loyalty runs the loyalty points ledger: the HTTP API, the
// operator commands and the scenario runner.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/loyalty/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
