// Command shardstore operates a sharded deduplicating object store.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/shardstore/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "shardstore:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
