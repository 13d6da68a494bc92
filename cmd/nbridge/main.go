// Command nbridge drives native plugin calls through the bridge dispatcher.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/nbridge/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "nbridge:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
