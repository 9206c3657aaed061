package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"regioncd/app/internal/app/bootstrap"
	"regioncd/app/internal/config"
	applog "regioncd/app/internal/log"
	"regioncd/app/internal/output"
	"regioncd/app/internal/pnu"
	"regioncd/app/internal/region"
	"regioncd/app/internal/tracing"
	"regioncd/app/internal/version"
)

type lookupFlags struct {
	query   string
	rows    int
	page    int
	timeout string
	key     string
	noScan  bool
	debug   bool
	json    bool
	format  string
	first   bool
	pnu     bool
	lot     string
}

// pnuOutput is printed in PNU mode for structured formats.
type pnuOutput struct {
	PNU        string `json:"pnu" yaml:"pnu"`
	RegionCode string `json:"region_cd" yaml:"region_cd"`
	Name       string `json:"name,omitempty" yaml:"name,omitempty"`
	Lot        string `json:"lot" yaml:"lot"`
}

func (c *cli) newRootCommand() *cobra.Command {
	flags := &lookupFlags{}

	root := &cobra.Command{
		Use:   "regioncd [query]",
		Short: "Look up MOIS standard region codes (region_cd) and build PNUs",
		Long: `regioncd queries the MOIS StanReginCd registry on data.go.kr for the
standard region code of an address or district name.

Every request is sent over https first and retried once over http when the
secure transport fails. When the direct lookup finds nothing, the provinces are
scanned one by one until a province yields matching districts.

Exit status: 0 codes found, 1 lookup failure, 2 no codes, 3 missing service key,
4 several codes in --pnu mode without --first.`,
		Example: `  regioncd --q "서울특별시 종로구"
  regioncd --q 양재동 --json
  regioncd --q "서울특별시 강남구 개포동" --pnu --lot "산 2-14"`,
		// Words that are not subcommand names form the query.
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.query == "" && len(args) > 0 {
				flags.query = strings.Join(args, " ")
			}
			return c.runLookup(cmd.Context(), flags)
		},
	}

	fs := root.Flags()
	fs.StringVar(&flags.query, "q", "", "address or district name, e.g. '서울특별시 강남구 개포동', '양재동'")
	fs.StringVar(&flags.query, "query", "", "alias of --q")
	fs.IntVar(&flags.rows, "rows", 0, "rows per upstream page, 1-1000 (default REGISTRY_ROWS)")
	fs.IntVar(&flags.page, "page", 1, "upstream page number")
	fs.StringVar(&flags.timeout, "timeout", "", "per-request timeout, seconds or a duration such as 12s (default REGISTRY_TIMEOUT)")
	fs.StringVar(&flags.key, "key", "", "service key, decoded or already URL encoded (default PUBLICDATA_KEY)")
	fs.BoolVar(&flags.noScan, "no-scan", false, "disable the province scan")
	fs.BoolVar(&flags.debug, "debug", false, "print lookup diagnostics as JSON to stderr")
	fs.BoolVar(&flags.json, "json", false, "shorthand for --format json")
	fs.StringVar(&flags.format, "format", "text", "output format: text, json or yaml")
	fs.BoolVar(&flags.first, "first", false, "use the lowest code when several districts match")
	fs.BoolVar(&flags.pnu, "pnu", false, "print a 19-digit PNU instead of region codes")
	fs.StringVar(&flags.lot, "lot", "", "lot number for --pnu, e.g. '2-14', '산 176-18', '176'")

	root.AddCommand(c.newCatalogCommand(), c.newVersionCommand())

	return root
}

func (c *cli) runLookup(ctx context.Context, flags *lookupFlags) error {
	query := region.NormalizeQuery(flags.query)
	if query == "" {
		return withExitCode(exitFailure, eris.New("a query is required: pass --q or a positional argument"))
	}

	format, err := resolveFormat(flags.format, flags.json)
	if err != nil {
		return withExitCode(exitFailure, err)
	}

	var lot pnu.Lot
	if flags.pnu {
		if strings.TrimSpace(flags.lot) == "" {
			return withExitCode(exitFailure, eris.New("--pnu requires --lot"))
		}
		if lot, err = pnu.ParseLot(flags.lot); err != nil {
			return withExitCode(exitFailure, err)
		}
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return withExitCode(exitFailure, eris.Wrap(err, "loading configuration"))
	}
	if err := applyLookupFlags(cfg, flags); err != nil {
		return withExitCode(exitFailure, err)
	}
	if !cfg.HasServiceKey() {
		return withExitCode(exitMissingKey, eris.New("serviceKey required: pass --key or set PUBLICDATA_KEY"))
	}

	logger, err := c.newLogger(cfg, flags.debug)
	if err != nil {
		return withExitCode(exitFailure, err)
	}

	tracerProvider, err := tracing.NewProvider(tracing.Options{
		Exporter:    cfg.Tracing.Exporter,
		Version:     version.Version,
		Environment: cfg.Environment,
		SampleRatio: cfg.Tracing.SampleRatio,
		Output:      c.stderr,
		Syncer:      true,
	})
	if err != nil {
		return withExitCode(exitFailure, err)
	}
	defer func() {
		_ = tracing.Shutdown(context.WithoutCancel(ctx), tracerProvider)
	}()

	app, err := bootstrap.Build(ctx, bootstrap.Dependencies{Config: *cfg, Logger: logger, TracerProvider: tracerProvider})
	if err != nil {
		return withExitCode(exitFailure, err)
	}
	defer func() {
		if closeErr := app.Cleanup(); closeErr != nil {
			logger.WithError(closeErr).Warn("releasing resources")
		}
	}()

	resolution, err := app.RegionService.Resolve(ctx, query, region.ResolveOptions{
		LookupOptions: region.LookupOptions{PageNo: flags.page, Rows: flags.rows},
		Scan:          !flags.noScan,
	})
	if flags.debug && resolution != nil {
		c.writeDiagnostics(resolution.Diagnostics)
	}
	if err != nil {
		if eris.Is(err, region.ErrMissingServiceKey) {
			return withExitCode(exitMissingKey, err)
		}
		return withExitCode(exitFailure, eris.Wrap(err, "lookup failed"))
	}

	if len(resolution.Codes) == 0 {
		if format != output.FormatText {
			_ = output.WriteResults(c.stdout, format, nil)
		}
		return withExitCode(exitNoCodes, eris.Errorf("no region code found for %q", query))
	}

	if flags.pnu {
		return c.printPNU(format, resolution, lot, flags.first)
	}

	results := resolution.Results
	if flags.first {
		results = results[:1]
	}

	if err := output.WriteResults(c.stdout, format, results); err != nil {
		return withExitCode(exitFailure, err)
	}
	return nil
}

func (c *cli) printPNU(format output.Format, resolution *region.Resolution, lot pnu.Lot, first bool) error {
	if len(resolution.Codes) > 1 && !first {
		for _, result := range resolution.Results {
			fmt.Fprintf(c.stderr, "  %s\t%s\n", result.Code, result.Name)
		}
		return withExitCode(exitAmbiguous, eris.Errorf("%d region codes match %q; narrow the query or pass --first", len(resolution.Codes), resolution.Query))
	}

	code := resolution.First()
	number, err := pnu.Make(code, lot)
	if err != nil {
		return withExitCode(exitFailure, err)
	}

	if format == output.FormatText {
		_, err = fmt.Fprintln(c.stdout, number)
		return err
	}

	out := pnuOutput{PNU: number, RegionCode: code, Lot: lot.String()}
	if len(resolution.Results) > 0 {
		out.Name = resolution.Results[0].Name
	}
	return output.Encode(c.stdout, format, out)
}

func (c *cli) writeDiagnostics(diagnostics region.Diagnostics) {
	encoder := json.NewEncoder(c.stderr)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(diagnostics)
}

func (c *cli) newLogger(cfg *config.Config, debug bool) (*logrus.Logger, error) {
	level := "warn"
	if debug {
		level = "debug"
	} else if strings.EqualFold(cfg.LogLevel, "debug") {
		level = cfg.LogLevel
	}

	return applog.New(applog.Options{Level: level, Format: applog.FormatText, Output: c.stderr})
}

// applyLookupFlags lets command line flags override the environment configuration.
func applyLookupFlags(cfg *config.Config, flags *lookupFlags) error {
	if key := strings.TrimSpace(flags.key); key != "" {
		cfg.Registry.ServiceKey = key
	}

	if flags.rows != 0 {
		if flags.rows < 1 || flags.rows > 1000 {
			return eris.Errorf("--rows must be between 1 and 1000, got %d", flags.rows)
		}
		cfg.Registry.Rows = flags.rows
	}

	if flags.page < 1 {
		return eris.Errorf("--page must be at least 1, got %d", flags.page)
	}

	if raw := strings.TrimSpace(flags.timeout); raw != "" {
		timeout, err := parseTimeout(raw)
		if err != nil {
			return err
		}
		cfg.Registry.Timeout = timeout
	}

	return nil
}

func parseTimeout(raw string) (time.Duration, error) {
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, eris.Errorf("--timeout must be positive, got %s", raw)
		}
		return time.Duration(seconds) * time.Second, nil
	}

	timeout, err := time.ParseDuration(raw)
	if err != nil || timeout <= 0 {
		return 0, eris.Errorf("invalid --timeout value: %s", raw)
	}
	return timeout, nil
}

func resolveFormat(raw string, jsonShortcut bool) (output.Format, error) {
	if jsonShortcut {
		return output.FormatJSON, nil
	}
	return output.ParseFormat(raw)
}
