// Package main provides the finvault CLI application.
package main

import (
	"context"
	"os"
	"os/signal"
)

func main() {
	registerCompletionFunctions()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	closeVault()
	stop()
	if err != nil {
		os.Exit(1)
	}
}
