package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	httpapi "github.com/partcat/partcat/internal/api/http"
	"github.com/partcat/partcat/internal/app"
	"github.com/partcat/partcat/internal/config"
	"github.com/partcat/partcat/internal/errors"
	"github.com/partcat/partcat/internal/filter/eval"
	"github.com/partcat/partcat/internal/filter/parser"
	"github.com/partcat/partcat/internal/logging"
	"github.com/partcat/partcat/pkg/types"
)

// clientAppName identifies one-shot commands in request contexts.
const clientAppName = "partcat-cli"

// loadConfig builds the configuration from file, environment and flags,
// in increasing priority.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)

	if dir := c.String("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	if level := c.String("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	return cfg, nil
}

// startApp loads the configuration and opens every catalog. One-shot
// commands log warnings only unless a level was asked for.
func startApp(c *cli.Context, quiet bool) (*app.App, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if quiet && c.String("log-level") == "" {
		cfg.Logging.Level = "warn"
	}

	logger, err := logging.New(cfg.Logging, c.App.ErrWriter)
	if err != nil {
		return nil, err
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := a.Start(c.Context); err != nil {
		return nil, err
	}
	return a, nil
}

// run opens the catalogs, runs fn under a CLI request context and prints
// its result as JSON.
func run(c *cli.Context, fn func(ctx context.Context, a *app.App) (interface{}, error)) error {
	a, err := startApp(c, true)
	if err != nil {
		return err
	}
	defer a.Stop(context.Background())

	rc := types.NewRequestContext(os.Getenv("USER"), clientAppName)
	ctx := types.WithRequestContext(c.Context, rc)

	out, err := fn(ctx, a)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, out)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "HTTP listen address",
			},
		},
		Action: func(c *cli.Context) error {
			a, err := startApp(c, false)
			if err != nil {
				return err
			}
			return a.Serve(c.Context)
		},
	}
}

func listFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "filter",
			Aliases: []string{"f"},
			Usage:   "Filter expression, e.g. \"dt > 20200101 AND region = 'us'\"",
		},
		&cli.StringSliceFlag{
			Name:  "name",
			Usage: "Restrict to partition names (repeatable)",
		},
		&cli.BoolFlag{
			Name:  "partial",
			Usage: "Treat --name values as prefixes",
		},
		&cli.BoolFlag{
			Name:  "include-metadata",
			Usage: "Include partition metadata",
		},
		&cli.BoolFlag{
			Name:  "exclude-location",
			Usage: "Omit storage locations",
		},
		&cli.StringFlag{
			Name:  "sort",
			Usage: "Sort field: name, uri, createdAt or a partition key",
		},
		&cli.StringFlag{
			Name:  "order",
			Usage: "Sort order: ASC or DESC",
			Value: string(types.SortAscending),
		},
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Page size; 0 returns everything",
		},
		&cli.IntFlag{
			Name:  "offset",
			Usage: "Number of results to skip",
		},
		&cli.StringFlag{
			Name:  "token",
			Usage: "Continuation token from a previous page",
		},
	}
}

// tableArg parses the "catalog/database/table" argument.
func tableArg(c *cli.Context) (types.QualifiedName, error) {
	if c.NArg() != 1 {
		return types.QualifiedName{}, fmt.Errorf("expected one catalog/database/table argument")
	}
	table, err := types.ParseQualifiedName(c.Args().First())
	if err != nil || !table.IsTable() {
		return types.QualifiedName{}, fmt.Errorf("%q is not a catalog/database/table name", c.Args().First())
	}
	return table, nil
}

func listArgs(c *cli.Context) (types.QualifiedName, *types.GetPartitionsRequest, *types.Sort, *types.Pageable, error) {
	table, err := tableArg(c)
	if err != nil {
		return table, nil, nil, nil, err
	}
	req := &types.GetPartitionsRequest{
		Filter:          c.String("filter"),
		PartitionNames:  c.StringSlice("name"),
		PartialKeyMatch: c.Bool("partial"),
		IncludeMetadata: c.Bool("include-metadata"),
		ExcludeLocation: c.Bool("exclude-location"),
	}
	var sort *types.Sort
	if field := c.String("sort"); field != "" {
		sort = &types.Sort{Field: field, Order: types.SortOrder(strings.ToUpper(c.String("order")))}
	}
	page := &types.Pageable{
		Offset: c.Int("offset"),
		Limit:  c.Int("limit"),
		Token:  c.String("token"),
	}
	return table, req, sort, page, nil
}

func partitionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "partitions",
		Aliases:   []string{"ls"},
		Usage:     "List the partitions of a table",
		ArgsUsage: "catalog/database/table",
		Flags:     listFlags(),
		Action: func(c *cli.Context) error {
			table, req, sort, page, err := listArgs(c)
			if err != nil {
				return err
			}
			return run(c, func(ctx context.Context, a *app.App) (interface{}, error) {
				return a.Dispatcher().GetPartitions(ctx, table, req, sort, page)
			})
		},
	}
}

func keysCommand() *cli.Command {
	return &cli.Command{
		Name:      "keys",
		Usage:     "List the partition names of a table",
		ArgsUsage: "catalog/database/table",
		Flags:     listFlags(),
		Action: func(c *cli.Context) error {
			table, req, sort, page, err := listArgs(c)
			if err != nil {
				return err
			}
			return run(c, func(ctx context.Context, a *app.App) (interface{}, error) {
				return a.Dispatcher().GetPartitionKeys(ctx, table, req, sort, page)
			})
		},
	}
}

func urisCommand() *cli.Command {
	return &cli.Command{
		Name:      "uris",
		Usage:     "List the partition locations of a table",
		ArgsUsage: "catalog/database/table",
		Flags:     listFlags(),
		Action: func(c *cli.Context) error {
			table, req, sort, page, err := listArgs(c)
			if err != nil {
				return err
			}
			return run(c, func(ctx context.Context, a *app.App) (interface{}, error) {
				return a.Dispatcher().GetPartitionURIs(ctx, table, req, sort, page)
			})
		},
	}
}

func countCommand() *cli.Command {
	return &cli.Command{
		Name:      "count",
		Usage:     "Count the partitions of a table",
		ArgsUsage: "catalog/database/table",
		Action: func(c *cli.Context) error {
			table, err := tableArg(c)
			if err != nil {
				return err
			}
			return run(c, func(ctx context.Context, a *app.App) (interface{}, error) {
				n, err := a.Dispatcher().GetPartitionCount(ctx, table)
				if err != nil {
					return nil, err
				}
				return httpapi.CountResponse{Count: n}, nil
			})
		},
	}
}

func namesCommand() *cli.Command {
	return &cli.Command{
		Name:      "names",
		Usage:     "Find the partitions stored at URIs",
		ArgsUsage: "uri [uri...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "prefix",
				Usage: "Return every partition located under each URI",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return fmt.Errorf("expected at least one URI")
			}
			return run(c, func(ctx context.Context, a *app.App) (interface{}, error) {
				found, err := a.Dispatcher().GetPartitionNames(ctx, c.Args().Slice(), c.Bool("prefix"))
				if err != nil {
					return nil, err
				}
				resp := httpapi.NamesResponse{Names: make(map[string][]string, len(found))}
				for uri, names := range found {
					for _, name := range names {
						resp.Names[uri] = append(resp.Names[uri], name.String())
					}
				}
				return resp, nil
			})
		},
	}
}

func saveCommand() *cli.Command {
	return &cli.Command{
		Name:      "save",
		Usage:     "Add, alter and drop partitions from a JSON save request",
		ArgsUsage: "catalog/database/table",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "JSON save request; - reads stdin",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "check-if-exists",
				Usage: "Skip partitions that already exist",
			},
			&cli.BoolFlag{
				Name:  "alter-if-exists",
				Usage: "Update partitions that already exist",
			},
		},
		Action: func(c *cli.Context) error {
			table, err := tableArg(c)
			if err != nil {
				return err
			}
			req, err := readSaveRequest(c)
			if err != nil {
				return err
			}
			return run(c, func(ctx context.Context, a *app.App) (interface{}, error) {
				return a.Dispatcher().SavePartitions(ctx, table, req)
			})
		},
	}
}

func readSaveRequest(c *cli.Context) (*types.PartitionsSaveRequest, error) {
	var r io.Reader = os.Stdin
	if path := c.String("file"); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open save request: %w", err)
		}
		defer f.Close()
		r = f
	}

	var req types.PartitionsSaveRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("failed to parse save request: %w", err)
	}
	if c.IsSet("check-if-exists") {
		req.CheckIfExists = c.Bool("check-if-exists")
	}
	if c.IsSet("alter-if-exists") {
		req.AlterIfExists = c.Bool("alter-if-exists")
	}
	return &req, nil
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete partitions",
		ArgsUsage: "catalog/database/table/partition [...]",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return fmt.Errorf("expected at least one partition name")
			}
			names := make([]types.QualifiedName, 0, c.NArg())
			for _, s := range c.Args().Slice() {
				name, err := types.ParseQualifiedName(s)
				if err != nil || !name.IsPartition() {
					return fmt.Errorf("%q is not a catalog/database/table/partition name", s)
				}
				names = append(names, name)
			}

			return run(c, func(ctx context.Context, a *app.App) (interface{}, error) {
				err := a.Dispatcher().DeletePartitions(ctx, names)
				batch, partial := errors.AsBatchError(err)
				if err != nil && !partial {
					return nil, err
				}

				resp := httpapi.DeleteResponse{Deleted: []string{}}
				failed := make(map[string]bool)
				if partial {
					for _, f := range batch.Failures() {
						failed[f.Name] = true
						resp.Failures = append(resp.Failures, httpapi.FailureResponse{
							Name:  f.Name,
							Error: f.Err.Error(),
							Code:  errors.GetCode(f.Err),
						})
					}
				}
				for _, name := range names {
					if !failed[name.String()] {
						resp.Deleted = append(resp.Deleted, name.String())
					}
				}
				if partial {
					if err := printJSON(c.App.Writer, resp); err != nil {
						return nil, err
					}
					return nil, fmt.Errorf("%d of %d partitions could not be deleted", batch.Len(), len(names))
				}
				return resp, nil
			})
		},
	}
}

// FilterReport describes a parsed filter expression.
type FilterReport struct {
	Canonical   string   `json:"canonical"`
	Keys        []string `json:"keys"`
	UnknownKeys []string `json:"unknownKeys,omitempty"`
	Matches     *bool    `json:"matches,omitempty"`
}

func filterCommand() *cli.Command {
	return &cli.Command{
		Name:      "filter",
		Usage:     "Parse a filter expression and print its canonical form",
		ArgsUsage: "expression",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "keys",
				Usage: "Known partition keys; unknown references are reported",
			},
			&cli.StringFlag{
				Name:  "match",
				Usage: "Evaluate the filter against a partition name, e.g. dt=20200101/region=us",
			},
		},
		Action: func(c *cli.Context) error {
			input := strings.Join(c.Args().Slice(), " ")
			expr, err := parser.Parse(input)
			if err != nil {
				return errors.NewSyntaxError(input, err)
			}

			report := FilterReport{
				Canonical: parser.Format(expr),
				Keys:      parser.Identifiers(expr),
			}
			if report.Keys == nil {
				report.Keys = []string{}
			}
			if c.IsSet("keys") {
				report.UnknownKeys = parser.Validate(expr, c.StringSlice("keys"))
			}
			if name := c.String("match"); name != "" {
				kv, err := types.ParsePartitionName(name)
				if err != nil {
					return err
				}
				matches := eval.Match(expr, kv)
				report.Matches = &matches
			}
			return printJSON(c.App.Writer, report)
		},
	}
}
