package main

import (
	"os"

	"github.com/kjannette/microtrend-backend/cmd/microtrend/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
