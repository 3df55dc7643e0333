// Package main is the entry point of the reconcile CLI.
package main

import (
	"os"

	"github.com/JonMunkholm/reconcile/cmd/reconcile/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
