package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/iondrive-co/chad/cmd/chad/cli"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	rootCmd := cli.NewRootCmd()
	err := rootCmd.ExecuteContext(ctx)

	if err != nil {
		var silent *cli.SilentError
		if !errors.As(err, &silent) {
			fmt.Fprintln(rootCmd.OutOrStderr(), err)
		}
		cancel()
		os.Exit(1)
	}
	cancel()
}
