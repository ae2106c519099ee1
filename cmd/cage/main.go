package main

import (
	"os"

	"github.com/agentcage/cage/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
