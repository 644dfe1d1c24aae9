package main

import (
	"context"
	"fmt"
	"os"

	"github.com/userdb/userdb/cmd/userdb/commands"
)

// Version information (set via ldflags during build)
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := commands.Execute(context.Background(), Version, Commit); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
