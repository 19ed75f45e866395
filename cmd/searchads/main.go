// Package main is the entry point for the searchads CLI binary.
package main

import (
	"os"

	cli "searchads-tap/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
