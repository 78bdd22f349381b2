// Serbridge - a serial-to-network bridge speaking the telnet subset.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"serbridge/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "serbridge: %v\n", err)
		os.Exit(1)
	}
}
