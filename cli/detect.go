package cli

import (
	"fmt"
	"path/filepath"

	"github.com/f4hrenh9it/go-eztest/failure"
	"github.com/f4hrenh9it/go-eztest/report"
	"github.com/urfave/cli/v2"
)

func (a *App) detect(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("exactly one report file is required", 2)
	}
	path := c.Args().First()
	rep, err := report.NewParser(a.l).ParseFile(path)
	if err != nil && !failure.Is(err, failure.KindNoResults) {
		return cli.Exit(fmt.Sprintf("%s: %v", filepath.Base(path), err), 1)
	}
	a.renderReport(rep)
	if err != nil {
		return cli.Exit(fmt.Sprintf("%s: %v", filepath.Base(path), err), 1)
	}
	return nil
}
