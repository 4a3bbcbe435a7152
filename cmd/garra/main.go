package main

import (
	"os"

	"github.com/ricmello/garra/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
