package main

import (
	"os"

	"routinely/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
