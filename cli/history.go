package cli

import (
	"fmt"
	"sort"

	"github.com/urfave/cli/v2"
)

func (a *App) history(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("exactly one test case id is required", 2)
	}
	id := c.Args().First()
	cfg, err := a.config(c)
	if err != nil {
		return err
	}
	client, err := a.client(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	entries, err := client.GetTestCaseHistory(c.Context, id)
	if err != nil {
		return cli.Exit(fmt.Sprintf("history of %s: %v", id, err), 1)
	}
	if len(entries) == 0 {
		fmt.Fprintf(a.out, "No history found for test case %s\n", id)
		return nil
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ExecutedAt.After(entries[j].ExecutedAt)
	})
	if limit := c.Int("limit"); limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	a.renderHistory(id, entries)
	return nil
}
