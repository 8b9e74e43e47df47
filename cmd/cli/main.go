// Package main is the entry point for the costplan CLI.
package main

import (
	"os"

	"costplan/cmd/cli/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
