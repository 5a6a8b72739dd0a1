package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"straitpulse/internal/config"
	"straitpulse/internal/dashboard"
	"straitpulse/internal/datasource"
	"straitpulse/internal/exporter"
	"straitpulse/internal/infrastructure"
	"straitpulse/internal/validation"
	"straitpulse/pkg/contracts"
	"straitpulse/pkg/contracts/domain"
)

// options holds the parsed flags of one invocation
type options struct {
	configFile string
	from       string
	to         string
	days       int
	indicators []string
	out        string

	source string
	path   string
	dsn    string
	layout string

	lineEnding string
	bom        bool
	logLevel   string

	now func() time.Time
}

// Execute runs the root command with os.Args
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd builds the strait-export command
func NewRootCmd() *cobra.Command {
	opts := &options{now: time.Now}

	cmd := &cobra.Command{
		Use:           "strait-export",
		Short:         "Export a dashboard selection as CSV",
		Version:       contracts.GetFullVersionString(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := run(cmd, opts)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configFile, "config", "", "YAML config file (STRAIT_* variables still apply)")
	f.StringVar(&opts.from, "from", "", "first day of the range, YYYY-MM-DD")
	f.StringVar(&opts.to, "to", "", "last day of the range, YYYY-MM-DD (default today)")
	f.IntVar(&opts.days, "days", 0, "length of the range ending at --to when --from is not given")
	f.StringSliceVar(&opts.indicators, "indicators", nil, "comma-separated indicator ids (default: the layout's defaults)")
	f.StringVarP(&opts.out, "out", "o", "", "output file or directory (default stdout)")
	f.StringVar(&opts.source, "source", "", "data source kind: memory, csv, xlsx, postgres or sqlite")
	f.StringVar(&opts.path, "path", "", "data directory or workbook for csv and xlsx sources")
	f.StringVar(&opts.dsn, "dsn", "", "connection string for postgres and sqlite sources")
	f.StringVar(&opts.layout, "layout", "", "dashboard layout YAML (default: built-in layout)")
	f.StringVar(&opts.lineEnding, "line-ending", "", "record separator: lf or crlf")
	f.BoolVar(&opts.bom, "bom", false, "prefix the document with a UTF-8 byte order mark")
	f.StringVar(&opts.logLevel, "log-level", "", "log level (default from config)")

	cmd.AddCommand(newLoadCmd())
	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	// one trace id per invocation
	ctx = infrastructure.EnsureTraceID(ctx)

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	logger := infrastructure.NewLogger(cmd.ErrOrStderr(), cfg.Logging.Level)
	validator := validation.NewPathValidator(logger)

	controller, err := buildController(cfg, opts, logger)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("indicators") {
		if err := controller.SetActive(opts.indicators); err != nil {
			return err
		}
	}

	rng, err := selectedRange(opts, cfg.Dashboard.DefaultRangeDays)
	if err != nil {
		return err
	}
	if err := controller.SetRange(rng.Start, rng.End); err != nil {
		return err
	}

	if err := validator.ValidateSource(cfg.DataSource.Kind, cfg.DataSource.Path); err != nil {
		return err
	}
	data, err := datasource.Open(ctx, cfg.DataSource, logger)
	if err != nil {
		return fmt.Errorf("open data source: %w", err)
	}
	defer data.Close()

	exportOptions, err := exporter.OptionsFromConfig(cfg.Export)
	if err != nil {
		return err
	}
	exportOptions.Now = opts.now

	start := time.Now()
	snap := controller.Snapshot()
	doc, err := exporter.Export(ctx, snap, data.Source, exportOptions)
	if err != nil {
		return err
	}

	target, err := writeDocument(ctx, validator, cmd.OutOrStdout(), opts.out, doc)
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "Export completed",
		slog.String("filename", doc.Filename),
		slog.String("target", target),
		slog.Any("indicators", snap.IDs()),
		slog.Int("days", snap.Range.Days()),
		slog.Int("rows", doc.Rows),
		slog.Int("bytes", doc.Size()),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// loadConfig layers flags over the config file and environment
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.LoadFile(opts.configFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.DataSource.Kind = strings.ToLower(opts.source)
	}
	if flags.Changed("path") {
		cfg.DataSource.Path = opts.path
	}
	if flags.Changed("dsn") {
		cfg.DataSource.DSN = opts.dsn
	}
	if flags.Changed("layout") {
		cfg.Dashboard.LayoutFile = opts.layout
	}
	if flags.Changed("line-ending") {
		cfg.Export.LineTerminator = opts.lineEnding
	}
	if flags.Changed("bom") {
		cfg.Export.BOM = opts.bom
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}

	// a one-shot run never needs to watch files
	cfg.DataSource.Watch = false

	switch cfg.DataSource.Kind {
	case datasource.KindCSV, datasource.KindXLSX:
		if cfg.DataSource.Path == "" {
			return nil, fmt.Errorf("--path is required for the %s source", cfg.DataSource.Kind)
		}
	case datasource.KindPostgres, datasource.KindSQLite:
		if cfg.DataSource.DSN == "" {
			return nil, fmt.Errorf("--dsn is required for the %s source", cfg.DataSource.Kind)
		}
	}
	return cfg, nil
}

func buildController(cfg *config.Config, opts *options, logger *slog.Logger) (*dashboard.Controller, error) {
	var (
		layout dashboard.Layout
		err    error
	)
	if cfg.Dashboard.LayoutFile != "" {
		layout, err = dashboard.LoadLayout(cfg.Dashboard.LayoutFile)
	} else {
		layout, err = dashboard.DefaultLayout()
	}
	if err != nil {
		return nil, fmt.Errorf("load layout: %w", err)
	}

	catalog, registry, err := layout.Build()
	if err != nil {
		return nil, err
	}
	return dashboard.NewController(catalog, registry,
		dashboard.WithClock(opts.now),
		dashboard.WithDefaultRangeDays(cfg.Dashboard.DefaultRangeDays),
		dashboard.WithLogger(logger))
}

// selectedRange resolves --from, --to and --days. Without --from the range
// is the trailing window of --days (or the configured default) ending at --to.
func selectedRange(opts *options, defaultDays int) (domain.DateRange, error) {
	end := domain.CalendarDate(opts.now())
	if opts.to != "" {
		d, err := domain.ParseDate(opts.to)
		if err != nil {
			return domain.DateRange{}, fmt.Errorf("--to: %w", err)
		}
		end = d
	}

	if opts.from == "" {
		days := opts.days
		if days <= 0 {
			days = defaultDays
		}
		return domain.TrailingRange(end, days), nil
	}

	start, err := domain.ParseDate(opts.from)
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("--from: %w", err)
	}
	return domain.NewDateRange(start, end), nil
}

// writeDocument sends doc to stdout, into a directory under its own name, or
// to a file. Files are written atomically.
func writeDocument(ctx context.Context, validator *validation.PathValidator, stdout io.Writer, out string, doc *exporter.Document) (string, error) {
	if out == "" || out == "-" {
		if _, err := stdout.Write(doc.Bytes); err != nil {
			return "", fmt.Errorf("write stdout: %w", err)
		}
		return "stdout", nil
	}

	path := out
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		path = filepath.Join(out, doc.Filename)
	} else if strings.HasSuffix(out, string(os.PathSeparator)) {
		if err := validator.ValidateOutputDirectory(out); err != nil {
			return "", err
		}
		path = filepath.Join(out, doc.Filename)
	}

	if err := exporter.WriteFileAtomic(ctx, path, doc.Bytes); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
