// Command formflow lints, versions and fills form templates from the
// terminal.
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

	a := newApp()
	err := newRootCmd(a).ExecuteContext(ctx)
	_ = a.teardown()
	if err != nil {
		stop()
		os.Exit(1)
	}
}
