// Command cleanctl runs one cleaning algorithm on a local file and prints a
// per-step summary.
//
//	cleanctl -in prices.csv -algorithm full_pipeline -out cleaned.csv
//
// Results are kept in memory unless -persist is given, in which case the
// dataset and its variants go to the store configured through CLEAN_STORAGE_*
// and feed the history the server learns from.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"unicode/utf8"

	"github.com/fatih/color"

	"adaptiveclean/internal/config"
	"adaptiveclean/internal/exporter"
	"adaptiveclean/internal/feedback"
	"adaptiveclean/internal/infrastructure"
	"adaptiveclean/internal/ingest"
	"adaptiveclean/internal/operations"
	"adaptiveclean/internal/storage"
	_ "adaptiveclean/internal/storage/all"
	"adaptiveclean/internal/validation"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

type options struct {
	in        string
	algorithm string
	out       string
	bom       bool
	persist   bool
	sheet     string
	table     int
	delimiter string
	logLevel  string
	noColor   bool
}

func parseFlags(args []string, defaults *config.Config, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("cleanctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.in, "in", "", "input file (.csv, .json, .xlsx, .html)")
	fs.StringVar(&opts.algorithm, "algorithm", defaults.Pipeline.DefaultAlgorithm, "cleaning algorithm")
	fs.StringVar(&opts.out, "out", "", "write the cleaned dataset as CSV to this file")
	fs.BoolVar(&opts.bom, "bom", false, "prefix the CSV output with a UTF-8 BOM")
	fs.BoolVar(&opts.persist, "persist", false, "store the dataset and variants in the configured backend")
	fs.StringVar(&opts.sheet, "sheet", "", "workbook sheet to read")
	fs.IntVar(&opts.table, "table", 0, "index of the HTML table to read")
	fs.StringVar(&opts.delimiter, "delimiter", "", "CSV field delimiter")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	fs.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.in == "" {
		fs.Usage()
		return nil, errors.New("-in is required")
	}
	if opts.delimiter != "" && utf8.RuneCountInString(opts.delimiter) != 1 {
		return nil, errors.New("-delimiter must be a single character")
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "cleanctl: %v; using defaults\n", err)
		cfg = config.Default()
	}

	opts, err := parseFlags(args, cfg, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "cleanctl: %v\n", err)
		}
		return exitUsage
	}
	if opts.noColor {
		color.NoColor = true
	}

	cfg.Logging.Level = opts.logLevel
	cfg.Logging.Output = "console"
	logger, err := infrastructure.NewLogger(cfg.Logging, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "cleanctl: %v\n", err)
		return exitError
	}

	if err := clean(ctx, cfg, opts, logger, stdout); err != nil {
		fmt.Fprintf(stderr, "cleanctl: %v\n", err)
		var opErr *operations.OperationError
		if errors.As(err, &opErr) && opErr.Type == operations.ErrorTypeValidation {
			return exitUsage
		}
		return exitError
	}
	return exitOK
}

func clean(ctx context.Context, cfg *config.Config, opts *options, logger *slog.Logger, stdout io.Writer) error {
	files := validation.NewFileValidator(logger, cfg.Server.MaxUploadBytes)
	if _, err := files.ValidateInput(opts.in); err != nil {
		return err
	}
	if opts.out != "" {
		if err := files.ValidateOutput(opts.out); err != nil {
			return err
		}
	}

	loadOpts := ingest.Options{Sheet: opts.sheet, Table: opts.table}
	if opts.delimiter != "" {
		loadOpts.Comma, _ = utf8.DecodeRuneInString(opts.delimiter)
	}
	upload, err := ingest.LoadFile(opts.in, loadOpts)
	if err != nil {
		return err
	}

	storeCfg := storage.Config{Kind: "memory"}
	if opts.persist {
		storeCfg = storage.Config{Kind: cfg.Storage.Kind, DSN: cfg.Storage.DSN}
		if err := cfg.Paths().EnsureDirectories(); err != nil {
			return err
		}
	}
	repo, err := storage.New(ctx, storeCfg)
	if err != nil {
		return err
	}
	defer repo.Close()
	if err := repo.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	rec := &storage.DatasetRecord{Name: upload.Name, Checksum: upload.Checksum, Data: upload.Data}
	if err := repo.SaveDataset(ctx, rec); err != nil {
		return fmt.Errorf("save dataset: %w", err)
	}

	controller := operations.NewController(operations.Dependencies{
		Datasets:     repo,
		History:      repo,
		Variants:     repo,
		Learner:      feedback.NewLearner(feedback.WithLogger(logger)),
		Manager:      operations.NewManager(logger),
		Logger:       logger,
		HistoryLimit: cfg.Storage.HistoryLimit,
	})
	out, err := controller.Stream(ctx, operations.Request{
		DatasetID: rec.ID,
		Algorithm: opts.algorithm,
	}, &summary{out: stdout})
	if err != nil {
		return err
	}

	if opts.out == "" {
		return nil
	}
	f, err := os.Create(opts.out)
	if err != nil {
		return err
	}
	if err := exporter.Write(f, out.Variants[0].Data, exporter.WriteOptions{BOMPrefix: opts.bom}); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", opts.out, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s %s\n", gray("wrote"), opts.out)
	return nil
}
