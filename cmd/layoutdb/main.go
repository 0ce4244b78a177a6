// Command layoutdb runs layout scenarios, benchmarks incremental layout
// passes and inspects benchmark history.
//
// Usage:
//
//	layoutdb run <scenario.yaml|dir>...   Run YAML scenarios
//	layoutdb bench [flags]                Benchmark full and incremental passes
//	layoutdb history list|compare         Inspect recorded benchmark runs
//	layoutdb config                       Print the effective configuration
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/roach88/layoutdb/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
