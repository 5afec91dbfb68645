// Command quarry compiles model declarations and turns query parameters
// into parameterized SQL.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/quarry/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err == nil {
		return
	}

	// Commands report their own failures; usage errors from cobra do not.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cli.GetExitCode(err))
}
