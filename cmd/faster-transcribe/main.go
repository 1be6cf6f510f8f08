package main

import (
	"os"

	"github.com/fmueller/whisperjson/internal/cli"
)

func main() {
	os.Exit(cli.Run(cli.NewFastCmd(), os.Args[1:]))
}
