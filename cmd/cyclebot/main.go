package main

import (
	"os"

	"cyclebot/cmd/cyclebot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
