package main

import (
	"os"

	"github.com/rustyeddy/equitybot/cmd/equitybot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
