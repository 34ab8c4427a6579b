// Command escrowctl runs operator tasks against the engine's stores: bill
// triggers, expiry and retry passes, ledger checks, migrations and donor
// tokens. It reads the same environment as the server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
