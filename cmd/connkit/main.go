// Command connkit runs connector plugins in a sandbox and tests them.
package main

import (
	"errors"
	"fmt"
	"os"

	"connkit/internal/cli"
	"connkit/pkg/logger"
)

func main() {
	rootCmd := cli.NewRootCmd()

	err := rootCmd.Execute()
	_ = logger.Close()
	if err != nil {
		if !errors.Is(err, cli.ErrTestsFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
