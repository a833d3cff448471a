// Package main is the entry point for the mercury packet metadata capture tool.
package main

import (
	"os"

	"github.com/truebasic2011/mercury/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
