package main

import (
	"os"

	"github.com/kyleking/sql-agent/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
