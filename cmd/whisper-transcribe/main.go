package main

import (
	"os"

	"github.com/fmueller/whisperjson/internal/cli"
)

func main() {
	os.Exit(cli.Run(cli.NewReferenceCmd(), os.Args[1:]))
}
