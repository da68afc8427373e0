// Command rosterctl exports, imports and inspects course rosters on a
// running roster store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gymroster/internal/config"
	"gymroster/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "rosterctl:", err)
		os.Exit(1)
	}
	logging.SetupNamed(cfg.Log.Level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(cfg).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
