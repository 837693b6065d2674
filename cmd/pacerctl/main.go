/*
pacerctl works on a pacer database without a running server.

Usage:

	pacerctl [command]

Available Commands:

	segment   Find the best sustained segment in a FIT activity
	import    Import FIT activities as workouts with streams
	predict   Print the fused fitness index and race predictions
	backtest  Rebuild monthly history from the first recorded activity
	export    Write an athlete's history to a parquet file
	zones     Print training paces for a fitness index
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/pacer/internal/cli"
)

// version is set via ldflags during build.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
