package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/rumor-ml/casparse/internal/output"
	"github.com/rumor-ml/casparse/internal/pipeline"
	"github.com/rumor-ml/casparse/internal/quarantine"
	"github.com/rumor-ml/casparse/internal/resolver"
	"github.com/rumor-ml/casparse/internal/scanner"
	"github.com/rumor-ml/casparse/internal/ui"
)

const version = "0.1.0"

var (
	versionFlag = flag.Bool("version", false, "Show version")

	// Core CLI flags
	inputPath    = flag.String("input", "", "Statement text file or directory (required for parsing)")
	outputFile   = flag.String("output", "", "Output JSON file (default: stdout; directory input writes <file>.json)")
	validateOnly = flag.Bool("validate-only", false, "Parse and report validation findings without writing JSON")
	verbose      = flag.Bool("verbose", false, "Show detailed parsing logs")
	quiet        = flag.Bool("quiet", false, "Only show warnings and errors")

	// Resolver flags
	cacheDir      = flag.String("cache-dir", "", "Resolver cache directory (default: user cache dir)")
	refresh       = flag.Bool("refresh", false, "Refresh the scheme reference database from the AMFI feed")
	addMapping    = flag.String("add-mapping", "", "Add a manual override, format: 'scheme pattern=ISIN'")
	removeMapping = flag.String("remove-mapping", "", "Remove a manual override by scheme pattern")

	// Quarantine flags
	quarantineCmd = flag.String("quarantine", "", "Quarantine operation: list, stats, resolve, delete")
	partialISIN   = flag.String("partial", "", "Partial ISIN for quarantine resolve/delete")
	schemeName    = flag.String("scheme", "", "Scheme name for quarantine resolve/delete")
	resolvedISIN  = flag.String("isin", "", "Full ISIN for quarantine resolve")
)

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `casparse - Consolidated mutual fund account statement parser

Usage:
  casparse [flags]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr, `
Examples:
  # Parse one statement to stdout
  casparse -input cas.txt

  # Parse a directory of statements, one JSON per file
  casparse -input ~/statements

  # Refresh the scheme reference database
  casparse -refresh

  # Teach the resolver a scheme it could not identify
  casparse -add-mapping 'obscure small cap fund=INF179K01BB8'

  # Review and resolve quarantined records
  casparse -quarantine list
  casparse -quarantine resolve -partial INF179 -isin INF179K01BB8

`)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("casparse version %s\n", version)
		os.Exit(0)
	}

	switch {
	case *verbose:
		log.SetLevel(log.DebugLevel)
	case *quiet:
		log.SetLevel(log.WarnLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
	log.SetOutput(os.Stderr)

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dir, err := resolveCacheDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	res, err := resolver.New(resolver.NewStore(dir))
	if err != nil {
		return fmt.Errorf("initializing resolver: %w", err)
	}

	// Maintenance operations run and exit before any parsing.
	switch {
	case *addMapping != "":
		return runAddMapping(res, *addMapping)
	case *removeMapping != "":
		return runRemoveMapping(res, *removeMapping)
	case *quarantineCmd != "":
		return runQuarantine(res, dir)
	}

	if *refresh {
		ui.Info(fmt.Sprintf("Refreshing scheme reference database (%d schemes cached)", res.SchemeCount()))
		if err := res.Refresh(context.Background()); err != nil {
			return fmt.Errorf("refreshing reference database: %w", err)
		}
		ui.Success(fmt.Sprintf("Reference database refreshed: %d schemes", res.SchemeCount()))
		if *inputPath == "" {
			return nil
		}
	}

	if *inputPath == "" {
		fmt.Fprintf(os.Stderr, "Error: -input flag is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	return runParse(res, dir)
}

func runParse(res *resolver.Resolver, cacheDir string) error {
	files, err := collectInputs(*inputPath)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no statement files found in %s\n\nPlease check:\n  - Path is correct\n  - Files have supported extensions (.txt, .cas)\n  - You have read permissions on the directory and files", *inputPath)
	}

	p, err := pipeline.New(res)
	if err != nil {
		return err
	}

	qstore, err := quarantine.Open(filepath.Join(cacheDir, "quarantine.db"))
	if err != nil {
		return err
	}
	defer qstore.Close()

	if !*verbose {
		ui.Header("Parsing Account Statements")
	}

	invalid := 0
	for i, file := range files {
		if !*verbose {
			ui.Step(i+1, len(files), fmt.Sprintf("Parsing %s", filepath.Base(file)))
		}

		lines, err := scanner.ReadLines(file)
		if err != nil {
			return err
		}

		st := p.Parse(lines, file)

		if err := qstore.AddAll(st.Quarantine); err != nil {
			log.WithError(err).Warn("could not persist quarantined records")
		}

		if !*verbose {
			ui.Summary("Holdings", len(st.Holdings))
			ui.Summary("Transactions", len(st.Transactions))
			if len(st.Quarantine) > 0 {
				ui.Warning(fmt.Sprintf("%d records quarantined (broken identifiers)", len(st.Quarantine)))
			}
		}

		if !st.Validation.IsValid {
			invalid++
		}
		reportValidation(st.Validation.Errors, st.Validation.Warnings)

		if *validateOnly {
			continue
		}

		dest := *outputFile
		if len(files) > 1 {
			dest = strings.TrimSuffix(file, filepath.Ext(file)) + ".json"
		}
		if err := output.WriteStatementToFile(st, dest); err != nil {
			return err
		}
		if dest != "" && !*verbose {
			ui.Success(fmt.Sprintf("Wrote %s", dest))
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d statements failed validation", invalid, len(files))
	}
	return nil
}

func reportValidation(errors, warnings []string) {
	for _, e := range errors {
		ui.Error(e)
	}
	if *verbose || *validateOnly {
		for _, w := range warnings {
			ui.Warning(w)
		}
	} else if len(warnings) > 0 {
		ui.Warning(fmt.Sprintf("%d validation warnings (run with -verbose to list)", len(warnings)))
	}
}

func runAddMapping(res *resolver.Resolver, mapping string) error {
	pattern, isin, ok := strings.Cut(mapping, "=")
	if !ok {
		return fmt.Errorf("invalid mapping %q, expected 'scheme pattern=ISIN'", mapping)
	}
	if err := res.AddOverride(strings.TrimSpace(pattern), strings.TrimSpace(isin)); err != nil {
		return err
	}
	ui.Success(fmt.Sprintf("Added override: %s -> %s", strings.TrimSpace(pattern), strings.TrimSpace(isin)))
	return nil
}

func runRemoveMapping(res *resolver.Resolver, pattern string) error {
	if err := res.RemoveOverride(strings.TrimSpace(pattern)); err != nil {
		return err
	}
	ui.Success(fmt.Sprintf("Removed override: %s", strings.TrimSpace(pattern)))
	return nil
}

func runQuarantine(res *resolver.Resolver, cacheDir string) error {
	qstore, err := quarantine.Open(filepath.Join(cacheDir, "quarantine.db"))
	if err != nil {
		return err
	}
	defer qstore.Close()

	switch *quarantineCmd {
	case "list":
		summary, err := qstore.Summary()
		if err != nil {
			return err
		}
		if len(summary) == 0 {
			ui.Info("No pending quarantine items")
			return nil
		}
		for _, row := range summary {
			partial := row.PartialISIN
			if partial == "" {
				partial = "<none>"
			}
			ui.BlueText(fmt.Sprintf("%s  %s (%s)", partial, row.SchemeName, row.AMC))
			ui.Info(fmt.Sprintf("%d items: %d holdings, %d transactions",
				row.Items, row.Holdings, row.Transactions))
		}
		return nil

	case "stats":
		stats, err := qstore.Stats()
		if err != nil {
			return err
		}
		ui.Summary("Total", stats.Total)
		ui.Summary("Pending", stats.Pending)
		ui.Summary("Resolved", stats.Resolved)
		ui.Summary("Unique partial ISINs", stats.UniquePartials)
		return nil

	case "resolve":
		if *resolvedISIN == "" {
			return fmt.Errorf("-isin is required for quarantine resolve")
		}
		outcome, err := qstore.Resolve(*partialISIN, *schemeName, *resolvedISIN, res)
		if err != nil {
			return err
		}
		ui.Success(fmt.Sprintf("Resolved %d holdings and %d transactions to %s",
			outcome.Holdings, outcome.Transactions, outcome.ResolvedISIN))
		ui.Info("Re-parse the source statement to import the recovered records")
		return nil

	case "delete":
		deleted, err := qstore.Delete(*partialISIN, *schemeName)
		if err != nil {
			return err
		}
		ui.Success(fmt.Sprintf("Deleted %d quarantine items", deleted))
		return nil

	default:
		return fmt.Errorf("unknown quarantine operation %q (expected list, stats, resolve, delete)", *quarantineCmd)
	}
}

func collectInputs(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading input path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	results, err := scanner.New(path).Scan()
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(results))
	for _, r := range results {
		files = append(files, r.Path)
	}
	return files, nil
}

func resolveCacheDir() (string, error) {
	if *cacheDir != "" {
		return *cacheDir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("determining cache directory: %w", err)
	}
	return filepath.Join(base, "casparse"), nil
}
