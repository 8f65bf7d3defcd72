// Package main is the entry point for the kiosk ledger.
package main

import (
	"os"

	"github.com/tinoosan/kiosk-ledger/cmd/kiosk/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
