// Package main is the entry point of the onboard supervisor.
package main

import (
	"fmt"
	"os"

	"RobotSupervisor/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
