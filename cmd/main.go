package main

import (
	"fmt"
	"os"

	// Integrations register themselves from init()
	_ "haintegrations/internal/garmin"
	_ "haintegrations/internal/jewishcalendar"
	_ "haintegrations/internal/omie"
)

// Set with -ldflags at build time
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
