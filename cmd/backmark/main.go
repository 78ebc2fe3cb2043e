package main

import (
	"os"

	"github.com/enriplaso/BackMark/cmd/backmark/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
