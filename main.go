// echosock - a concurrent TCP echo server built on owned socket handles.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"echosock/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "echosock: %v\n", err)
		os.Exit(1)
	}
}
