// Package main implements the partcat binary: a federated partition
// catalog served over HTTP, plus one-shot commands against the same
// configured catalogs.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "partcat",
		Usage:   "Federated partition catalog",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Description: `Routes partition listing, filtering, saving and deletion to the
catalog backend (SQLite, Hive metastore or object storage) named in each
request.

Examples:
  partcat serve --config /etc/partcat/config.yaml
  partcat partitions local/db/events --filter "dt > 20200101 AND region = 'us'"
  partcat names --prefix s3://bucket/db/events
  partcat filter "dt > 20200101" --match "dt=20200102/region=us"`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file (YAML or JSON)",
				EnvVars: []string{"PARTCAT_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "Base directory for local catalog files",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: trace, debug, info, warn, error",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			partitionsCommand(),
			keysCommand(),
			urisCommand(),
			countCommand(),
			namesCommand(),
			saveCommand(),
			deleteCommand(),
			filterCommand(),
		},
	}
}
