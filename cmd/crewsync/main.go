package main

import (
	"os"

	"github.com/crewsync/crewsync/internal/interface/cli"
)

func main() {
	if err := cli.NewRoot().Execute(); err != nil {
		os.Exit(1)
	}
}
