// Command consultmesh serves multi-turn model consultations to a calling
// agent over a JSON-lines protocol on stdio, or interactively on a terminal.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
