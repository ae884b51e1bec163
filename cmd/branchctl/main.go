// Command branchctl runs the branch scenario against a configured event store.
//
// Usage:
//
//	PUPKERNEL_BACKEND=sqlite PUPKERNEL_DSN=branches.db branchctl -name main -rename main2 -country Japan -relocate USA
//
// Environment:
//
//	PUPKERNEL_BACKEND     memory (default), sqlite, postgres or mysql
//	PUPKERNEL_DSN         connection string for the SQL backends
//	PUPKERNEL_REDIS_ADDR  enables the Redis snapshot cache
//	PUPKERNEL_LOG_MODE    production or development (default)
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/getpup/pupkernel/es/logging/zaplog"
)

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdout, os.Stderr))
}

// realMain returns the process exit code, so deferred cleanup such as the
// logger flush runs before main exits.
func realMain(args []string, stdout, stderr io.Writer) int {
	var sc scenario
	fs := flag.NewFlagSet("branchctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&sc.Name, "name", "main", "Initial branch name")
	fs.StringVar(&sc.Rename, "rename", "main2", "Name the branch is renamed to")
	fs.StringVar(&sc.Country, "country", "Japan", "Initial country")
	fs.StringVar(&sc.Relocate, "relocate", "USA", "Country the branch moves to")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := parseConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	logger, err := zaplog.NewFromMode(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, sc, logger, stdout); err != nil {
		logger.Error(ctx, "branchctl failed", "error", err)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printResponse(out io.Writer, step string, r responseView) {
	if r.NoOp {
		fmt.Fprintf(out, "%-10s no-op          version=%d state=%+v\n", step, r.Version, r.State)
		return
	}
	fmt.Fprintf(out, "%-10s events=%-7s version=%d state=%+v\n", step, r.Range, r.Version, r.State)
}
