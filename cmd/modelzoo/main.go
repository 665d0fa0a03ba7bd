package main

import (
	"github.com/joho/godotenv"

	"github.com/018kpmanoj/ModelZoo/internal/cli"
)

func main() {
	_ = godotenv.Load()
	cli.Execute()
}
