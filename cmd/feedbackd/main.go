package main

import (
	"os"

	"github.com/2impaoo-it/feedback-system/cmd/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
