package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/f4hrenh9it/go-eztest/cli"
	urfave "github.com/urfave/cli/v2"
)

// Version information, set via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	c := cli.New()
	c.SetVersion(version, commit, date)
	if err := c.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var exitErr urfave.ExitCoder
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		os.Exit(1)
	}
}
