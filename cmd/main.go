package main

import (
	"os"

	"github.com/soundprediction/expertgraph/cmd/expertgraph"
)

func main() {
	if err := expertgraph.Execute(); err != nil {
		os.Exit(1)
	}
}
