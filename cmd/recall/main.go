package main

import (
	"fmt"
	"os"

	"github.com/dshills/recall-mcp/internal/mcp"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if version != "dev" {
		mcp.ServerVersion = version
	}

	err := Execute()
	if logCloser != nil {
		_ = logCloser.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
