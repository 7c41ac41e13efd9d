// Package cli is the eztest command line: import, submit, detect and history.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/f4hrenh9it/go-eztest/config"
	"github.com/f4hrenh9it/go-eztest/integration"
	"github.com/f4hrenh9it/go-eztest/metrics"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const AppName = "eztest"

const defaultConcurrency = 4

type App struct {
	l   *zap.SugaredLogger
	out io.Writer
	cli *cli.App
}

func New() *App {
	app := &App{
		l:   integration.NewLogger("info"),
		out: os.Stdout,
	}
	app.cli = &cli.App{
		Name:   AppName,
		Usage:  "Import automated test reports into an EZTest registry",
		Writer: app.out,
		// Exit codes are resolved by the caller of Run.
		ExitErrHandler: func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML or TOML config file",
				EnvVars: []string{"EZTEST_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "server-url",
				Usage: "Registry server URL, e.g. https://eztest.example.com",
			},
			&cli.StringFlag{
				Name:  "api-key",
				Usage: "Registry API key",
			},
			&cli.StringFlag{
				Name:    "project",
				Aliases: []string{"p"},
				Usage:   "Registry project id",
			},
			&cli.StringFlag{
				Name:  "environment",
				Usage: "Environment label for runs whose report names none",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Logging level: debug, info, warn or error",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose (debug) logging",
			},
		},
		Before: func(c *cli.Context) error {
			switch {
			case c.Bool("verbose"):
				app.l = integration.NewLogger("debug")
			case c.IsSet("log-level"):
				app.l = integration.NewLogger(c.String("log-level"))
			}
			return nil
		},
	}
	app.cli.Commands = []*cli.Command{
		{
			Name:      "import",
			Usage:     "Parse report files and record them as test runs",
			ArgsUsage: "FILE...",
			Action:    app.importReports,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "direct",
					Usage: "Send reports that name their run through the one-call import endpoint",
				},
				&cli.BoolFlag{
					Name:  "replace",
					Usage: "Delete the latest run with the same name before creating a new one",
				},
				&cli.IntFlag{
					Name:    "concurrency",
					Aliases: []string{"j"},
					Usage:   "Number of reports imported in parallel",
					Value:   defaultConcurrency,
				},
			},
		},
		{
			Name:      "submit",
			Usage:     "Send a minimal JSON report through the one-call import endpoint",
			ArgsUsage: "FILE",
			Action:    app.submit,
		},
		{
			Name:      "detect",
			Usage:     "Parse a report without contacting the registry and print what was found",
			ArgsUsage: "FILE",
			Action:    app.detect,
		},
		{
			Name:      "history",
			Usage:     "Print the execution history of a test case",
			ArgsUsage: "TESTCASE_ID",
			Action:    app.history,
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "limit",
					Aliases: []string{"n"},
					Usage:   "Show at most this many entries, newest first (0 for all)",
					Value:   20,
				},
			},
		},
	}
	return app
}

func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// config loads the file named by --config, then applies flag overrides and
// validates the result.
func (a *App) config(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), 2)
	}
	override := func(dst *string, flag string) {
		if c.IsSet(flag) {
			*dst = c.String(flag)
		}
	}
	override(&cfg.ServerURL, "server-url")
	override(&cfg.APIKey, "api-key")
	override(&cfg.ProjectID, "project")
	override(&cfg.Environment, "environment")
	override(&cfg.LogLevel, "log-level")
	if err := cfg.Validate(); err != nil {
		return nil, cli.Exit(fmt.Sprintf("invalid configuration: %v", err), 2)
	}
	if !c.IsSet("log-level") && !c.Bool("verbose") && cfg.LogLevel != "" {
		a.l = integration.NewLogger(cfg.LogLevel)
	}
	return cfg, nil
}

func (a *App) client(cfg *config.Config) (*integration.Client, error) {
	client, err := integration.NewFromConfig(cfg, a.l)
	if err != nil {
		return nil, cli.Exit(err.Error(), 2)
	}
	return client, nil
}

// pushMetrics is best effort; a gateway outage never fails an import.
func (a *App) pushMetrics(cfg *config.Config) {
	if cfg.Pushgateway == "" {
		return
	}
	if err := metrics.Push(cfg.Pushgateway, AppName); err != nil {
		a.l.Warnw("metrics push failed", "gateway", cfg.Pushgateway, "err", err)
		return
	}
	a.l.Debugw("metrics pushed", "gateway", cfg.Pushgateway)
}
