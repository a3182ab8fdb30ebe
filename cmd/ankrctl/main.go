package main

import (
	"os"

	"OpenMCP-Ankr/internal/cli"
)

func main() {
	runner := cli.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}
