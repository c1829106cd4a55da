package main

import (
	"fmt"
	"os"

	"github.com/soyeahso/iris/internal/cli"
	"github.com/tillberg/autorestart"
)

func main() {
	// Rebuild-and-restart loop for development.
	if os.Getenv("IRIS_AUTORESTART") == "1" {
		go autorestart.RestartOnChange()
	}

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "iris:", err)
		os.Exit(1)
	}
}
