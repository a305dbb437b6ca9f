package main

import (
	"context"
	"fmt"
	"os"

	commands "github.com/lewisedginton/agent_handoff/internal/cli"
)

func main() {
	if err := commands.NewApp().RunContext(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
