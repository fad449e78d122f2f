// Command unifiedrunner validates unified test format files and plans their
// eligibility against a MongoDB deployment.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/unifiedrunner/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err == nil {
		return
	}
	// Subcommands print their own errors; only usage errors reach here
	// unreported.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
