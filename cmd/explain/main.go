package main

import (
	"os"

	"github.com/nvr-ai/go-explain/cmd/explain/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
