package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/bnema/parley/cmd"
)

func main() {
	// A missing .env is fine; provider keys may come from pass or files.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
