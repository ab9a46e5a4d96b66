package main

import (
	"os"

	"music-separator/internal/cli"
)

var version = "dev"

func main() {
	os.Exit(cli.Execute(version))
}
