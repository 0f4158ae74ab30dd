// Command blazegen generates entity view structs and the static metamodel
// from YAML model files, and validates database schemas against them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/syssam/blaze/cmd/blazegen/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "blazegen:", err)
		stop()
		os.Exit(1)
	}
}
