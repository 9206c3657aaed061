package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"regioncd/app/internal/catalog"
	"regioncd/app/internal/db"
	applog "regioncd/app/internal/log"
	"regioncd/app/internal/output"
)

type catalogMatch struct {
	Code       string   `json:"code,omitempty" yaml:"code,omitempty"`
	Name       string   `json:"name,omitempty" yaml:"name,omitempty"`
	Candidates []string `json:"candidates,omitempty" yaml:"candidates,omitempty"`
}

func (c *cli) newCatalogCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the local district catalog used for offline conversions",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "catalog sqlite path (default CATALOG_DB_PATH)")

	importCmd := &cobra.Command{
		Use:   "import <csv>",
		Short: "Import districts from a CSV file (시도,시군구,읍면동,법정동코드)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withCatalog(cmd.Context(), dbPath, func(ctx context.Context, repo *catalog.Repository) error {
				return c.importCatalog(ctx, repo, args[0])
			})
		},
	}

	var format string
	findCmd := &cobra.Command{
		Use:   "find <query>",
		Short: "Find the code of a district in the local catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := output.ParseFormat(format)
			if err != nil {
				return withExitCode(exitFailure, err)
			}
			return c.withCatalog(cmd.Context(), dbPath, func(ctx context.Context, repo *catalog.Repository) error {
				return c.findCatalog(ctx, repo, strings.Join(args, " "), outFormat)
			})
		},
	}
	findCmd.Flags().StringVar(&format, "format", "text", "output format: text, json or yaml")

	cmd.AddCommand(importCmd, findCmd)
	return cmd
}

func (c *cli) withCatalog(ctx context.Context, dbPath string, fn func(context.Context, *catalog.Repository) error) error {
	if dbPath == "" {
		cfg, err := c.loadConfig()
		if err != nil {
			return withExitCode(exitFailure, eris.Wrap(err, "loading configuration"))
		}
		dbPath = cfg.CatalogDBPath
	}
	if dbPath == "" {
		return withExitCode(exitFailure, eris.New("catalog database path required: pass --db or set CATALOG_DB_PATH"))
	}

	logger, err := applog.New(applog.Options{Level: "warn", Format: applog.FormatText, Output: c.stderr})
	if err != nil {
		return withExitCode(exitFailure, err)
	}

	repo, database, err := catalog.Open(ctx, dbPath, logger)
	if err != nil {
		return withExitCode(exitFailure, err)
	}
	defer func() {
		_ = db.Close(database)
	}()

	return fn(ctx, repo)
}

func (c *cli) importCatalog(ctx context.Context, repo *catalog.Repository, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return withExitCode(exitFailure, eris.Wrapf(err, "opening %s", path))
	}
	defer file.Close()

	districts, err := catalog.ReadCSV(file)
	if err != nil {
		return withExitCode(exitFailure, eris.Wrapf(err, "reading %s", path))
	}

	imported, err := repo.Import(ctx, districts)
	if err != nil {
		return withExitCode(exitFailure, err)
	}

	total, err := repo.Count(ctx)
	if err != nil {
		return withExitCode(exitFailure, err)
	}

	fmt.Fprintf(c.stdout, "imported %d districts (%d in catalog)\n", imported, total)
	return nil
}

func (c *cli) findCatalog(ctx context.Context, repo *catalog.Repository, query string, format output.Format) error {
	match, err := repo.Find(ctx, query)
	switch {
	case err == nil:
	case eris.Is(err, catalog.ErrAmbiguous):
		if match != nil {
			for _, candidate := range match.Candidates {
				fmt.Fprintf(c.stderr, "  %s\n", candidate)
			}
			if format != output.FormatText {
				_ = output.Encode(c.stdout, format, catalogMatch{Candidates: match.Candidates})
			}
		}
		return withExitCode(exitAmbiguous, err)
	case eris.Is(err, catalog.ErrNotFound):
		return withExitCode(exitNoCodes, err)
	default:
		return withExitCode(exitFailure, err)
	}

	if format == output.FormatText {
		_, err = fmt.Fprintf(c.stdout, "%s\t%s\n", match.Code, match.Name)
		return err
	}
	return output.Encode(c.stdout, format, catalogMatch{Code: match.Code, Name: match.Name})
}
