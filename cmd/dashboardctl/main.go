// Command dashboardctl provides operator commands for the attendance dashboard.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/noah-isme/attendance-dashboard-api/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}
