// Package main provides the entry point for the cuse-mixd mixing daemon.
package main

import (
	"fmt"
	"os"

	"github.com/Raikerian/go-cuse-mixer/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
