package main

import (
	"os"

	"github.com/okian/skincheck/cmd/skincheck/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
