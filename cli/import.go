package cli

// This file contains the import and submit commands.

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/f4hrenh9it/go-eztest/failure"
	"github.com/f4hrenh9it/go-eztest/importer"
	"github.com/sourcegraph/conc/pool"
	"github.com/urfave/cli/v2"
)

type fileResult struct {
	index int
	path  string
	res   *importer.Result
	err   error
}

func (a *App) importReports(c *cli.Context) error {
	files := c.Args().Slice()
	if len(files) == 0 {
		return cli.Exit("at least one report file is required", 2)
	}
	cfg, err := a.config(c)
	if err != nil {
		return err
	}
	client, err := a.client(cfg)
	if err != nil {
		return err
	}
	defer client.Close()
	defer a.pushMetrics(cfg)

	imp, err := importer.New(client, importer.Options{
		Direct:          c.Bool("direct"),
		ReplacePrevious: c.Bool("replace"),
		Environment:     cfg.Environment,
		CacheSize:       cfg.CacheSize,
		Logger:          a.l,
	})
	if err != nil {
		return err
	}

	workers := c.Int("concurrency")
	if workers < 1 {
		workers = 1
	}
	p := pool.NewWithResults[fileResult]().WithMaxGoroutines(workers)
	for i, path := range files {
		p.Go(func() fileResult {
			res, err := imp.ImportFile(c.Context, path)
			return fileResult{index: i, path: path, res: res, err: err}
		})
	}
	results := p.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].index < results[j].index })

	a.renderImports(results)
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
		}
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d reports were not imported", failed, len(results)), 1)
	}
	return nil
}

func (a *App) submit(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("exactly one report file is required", 2)
	}
	path := c.Args().First()
	cfg, err := a.config(c)
	if err != nil {
		return err
	}
	client, err := a.client(cfg)
	if err != nil {
		return err
	}
	defer client.Close()
	defer a.pushMetrics(cfg)

	imp, err := importer.New(client, importer.Options{Logger: a.l})
	if err != nil {
		return err
	}
	rep, err := imp.Parser().ParseFile(path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("%s: %v", filepath.Base(path), err), 1)
	}
	res, err := imp.Submit(c.Context, rep)
	if err != nil {
		if failure.Is(err, failure.KindMissingRequiredField) {
			return cli.Exit(fmt.Sprintf("%s: %v", filepath.Base(path), err), 2)
		}
		return cli.Exit(fmt.Sprintf("%s: %v", filepath.Base(path), err), 1)
	}
	a.renderSubmit(res)
	return nil
}
