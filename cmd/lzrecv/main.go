// Command lzrecv executes inbound cross-chain messages against a local
// receiver database.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/lzrecv/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "lzrecv: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
