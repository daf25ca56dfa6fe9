package main

import (
	"github.com/joho/godotenv"

	"ge-price-pipeline/internal/cli"
)

func main() {
	_ = godotenv.Load()
	cli.Execute()
}
