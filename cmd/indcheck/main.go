// cmd/indcheck validates an indicator set and moves bar history between
// files and SQLite.
//
// Usage:
//
//	go run ./cmd/indcheck --file=config/indicators.yaml
//	go run ./cmd/indcheck --db=data/streamta.db          # stored set
//	go run ./cmd/indcheck --kinds                        # defaults per kind
//	go run ./cmd/indcheck --db=data/streamta.db --import=bars.csv --exchange=NSE --token=26000 --tf=60
//	go run ./cmd/indcheck --redis=localhost:6379 --import=bars.parquet   # publish to bar streams
//	go run ./cmd/indcheck --db=data/streamta.db --export=bars.parquet --tf=60
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"streamta/config"
	"streamta/internal/feed"
	"streamta/internal/indicator"
	"streamta/internal/logger"
	"streamta/internal/model"
	redisstore "streamta/internal/store/redis"
	sqlitestore "streamta/internal/store/sqlite"
)

func main() {
	logger.Init("indcheck", slog.LevelWarn, "text")
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "indcheck:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("indcheck", flag.ContinueOnError)
	file := fs.String("file", "", "Indicator YAML file to validate")
	dbPath := fs.String("db", "", "SQLite database (stored indicator set, bar import/export)")
	kinds := fs.Bool("kinds", false, "List indicator kinds with their default params")
	canonical := fs.Bool("canonical", false, "Print the validated set as canonical YAML")
	redisAddr := fs.String("redis", "", "Redis address; --import also publishes to the bar streams")
	importPath := fs.String("import", "", "Bar file (.csv or .parquet) to import into --db and/or --redis")
	exportPath := fs.String("export", "", "Parquet file to export --db bars of --tf into")
	exchange := fs.String("exchange", "", "Exchange for imported rows that carry none")
	token := fs.String("token", "", "Token for imported rows that carry none")
	tf := fs.Int("tf", 60, "Timeframe in seconds")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *kinds:
		return printKinds(stdout)
	case *importPath != "":
		return importBars(ctx, *dbPath, *redisAddr, *importPath, feed.Defaults{Exchange: *exchange, Token: *token, TF: *tf}, stdout)
	case *exportPath != "":
		return exportBars(ctx, *dbPath, *exportPath, *tf, stdout)
	}

	stored, err := loadSet(ctx, *file, *dbPath)
	if err != nil {
		return err
	}
	specs, err := indicator.FromStored(stored)
	if err != nil {
		return err
	}
	if err := indicator.ValidateSpecs(specs); err != nil {
		return err
	}

	if *canonical {
		data, err := config.MarshalIndicators(indicator.ToStored(specs))
		if err != nil {
			return err
		}
		_, err = stdout.Write(data)
		return err
	}
	return printSpecs(stdout, specs)
}

func loadSet(ctx context.Context, file, dbPath string) ([]model.StoredIndicator, error) {
	switch {
	case file != "":
		return config.LoadIndicators(file)
	case dbPath != "":
		r, err := sqlitestore.NewReader(dbPath)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		stored, err := r.LoadIndicators(ctx)
		if err != nil {
			return nil, err
		}
		if len(stored) == 0 {
			return nil, fmt.Errorf("no indicator set stored in %s", dbPath)
		}
		return stored, nil
	}
	return nil, errors.New("one of --file, --db or --kinds is required")
}

func printSpecs(w io.Writer, specs []indicator.Spec) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tVALUES\tSIGNALS\tPARAMS")
	for _, s := range specs {
		v, sig := s.Config.Size()
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", s.Name, s.Config.Name(), v, sig, formatParams(s.Config.Params()))
	}
	return tw.Flush()
}

func printKinds(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tVALUES\tSIGNALS\tDEFAULTS")
	for _, k := range indicator.Kinds() {
		cfg, err := indicator.Default(k)
		if err != nil {
			return err
		}
		v, sig := cfg.Size()
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", k, v, sig, formatParams(cfg.Params()))
	}
	return tw.Flush()
}

func formatParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + params[k]
	}
	return strings.Join(parts, " ")
}

// barSink is a store that accepts bar history.
type barSink interface {
	WriteBars(ctx context.Context, bars []model.Bar) error
	Close() error
}

func importBars(ctx context.Context, dbPath, redisAddr, path string, d feed.Defaults, stdout io.Writer) error {
	if dbPath == "" && redisAddr == "" {
		return errors.New("--import needs --db or --redis")
	}
	bars, err := readBarFile(path, d)
	if err != nil {
		return err
	}
	for i, b := range bars {
		if b.Exchange == "" || b.Token == "" || b.TF <= 0 {
			return fmt.Errorf("row %d has no series; pass --exchange, --token and --tf", i+1)
		}
	}

	var sinks []barSink
	defer func() {
		for _, s := range sinks {
			s.Close()
		}
	}()
	var targets []string
	if dbPath != "" {
		w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: dbPath})
		if err != nil {
			return err
		}
		sinks = append(sinks, w)
		targets = append(targets, dbPath)
	}
	if redisAddr != "" {
		w, err := redisstore.New(redisstore.WriterConfig{Addr: redisAddr})
		if err != nil {
			return err
		}
		sinks = append(sinks, w)
		targets = append(targets, "redis "+redisAddr)
	}

	for _, s := range sinks {
		if err := s.WriteBars(ctx, bars); err != nil {
			return err
		}
	}
	fmt.Fprintf(stdout, "imported %d bars into %s\n", len(bars), strings.Join(targets, ", "))
	return nil
}

func readBarFile(path string, d feed.Defaults) ([]model.Bar, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return feed.ReadParquet(path, d)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return feed.ReadCSV(f, d)
	}
	return nil, fmt.Errorf("unsupported bar file %q", path)
}

func exportBars(ctx context.Context, dbPath, path string, tf int, stdout io.Writer) error {
	if dbPath == "" {
		return errors.New("--export needs --db")
	}
	r, err := sqlitestore.NewReader(dbPath)
	if err != nil {
		return err
	}
	defer r.Close()
	bars, err := r.ReadAllBars(ctx, tf, 0)
	if err != nil {
		return err
	}
	if err := feed.WriteParquet(path, bars); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported %d bars to %s\n", len(bars), path)
	return nil
}
