package main

import (
	"os"

	"github.com/cardbox-io/cardbox/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
