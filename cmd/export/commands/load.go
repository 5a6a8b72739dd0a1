package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"straitpulse/internal/config"
	"straitpulse/internal/datasource"
	"straitpulse/internal/infrastructure"
	"straitpulse/internal/validation"
)

type loadOptions struct {
	configFile  string
	source      string
	path        string
	dsn         string
	forwardFill bool
	base100     bool
	baseDate    string
	logLevel    string
}

// newLoadCmd builds the load subcommand, which fills a SQL data source
// from a directory of daily price files
func newLoadCmd() *cobra.Command {
	opts := &loadOptions{}

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load a directory of price CSV files into a postgres or sqlite source",
		Long: `Load reads every <symbol>.csv file in --path, cleans it, applies the
configured transforms and upserts the points into the market_data table,
creating the schema when it is missing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runLoad(cmd, opts)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configFile, "config", "", "YAML config file (STRAIT_* variables still apply)")
	f.StringVar(&opts.source, "source", "", "target kind: postgres or sqlite")
	f.StringVar(&opts.path, "path", "", "directory of <symbol>.csv price files")
	f.StringVar(&opts.dsn, "dsn", "", "connection string of the target database")
	f.BoolVar(&opts.forwardFill, "forward-fill", false, "fill calendar gaps with the previous close")
	f.BoolVar(&opts.base100, "base100", false, "store closes rebased to 100 as the value column")
	f.StringVar(&opts.baseDate, "base-date", "", "base day for --base100, YYYY-MM-DD (default first point)")
	f.StringVar(&opts.logLevel, "log-level", "", "log level (default from config)")

	return cmd
}

func runLoad(cmd *cobra.Command, opts *loadOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = infrastructure.EnsureTraceID(ctx)

	cfg, err := loadTargetConfig(cmd, opts)
	if err != nil {
		return err
	}
	logger := infrastructure.NewLogger(cmd.ErrOrStderr(), cfg.Logging.Level)

	if err := validation.NewPathValidator(logger).ValidateSource(datasource.KindCSV, opts.path); err != nil {
		return err
	}
	transform, err := datasource.TransformOptionsFromConfig(cfg.DataSource)
	if err != nil {
		return err
	}

	dst, err := datasource.OpenSQL(ctx, cfg.DataSource.Kind, cfg.DataSource.DSN, cfg.DataSource.Symbols, logger)
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.DataSource.Kind, err)
	}
	defer dst.Close()

	if err := dst.EnsureSchema(ctx); err != nil {
		return err
	}

	start := time.Now()
	written, err := datasource.ImportCSVDir(ctx, opts.path, dst, transform)
	if err != nil {
		return fmt.Errorf("load %s: %w", opts.path, err)
	}

	symbols := make([]string, 0, len(written))
	points := 0
	for symbol, n := range written {
		symbols = append(symbols, symbol)
		points += n
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", symbol, written[symbol])
	}

	logger.InfoContext(ctx, "Load completed",
		slog.String("kind", cfg.DataSource.Kind),
		slog.Any("symbols", symbols),
		slog.Int("points", points),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// loadTargetConfig layers the load flags over the config file and environment
func loadTargetConfig(cmd *cobra.Command, opts *loadOptions) (*config.Config, error) {
	cfg, err := config.LoadFile(opts.configFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.DataSource.Kind = strings.ToLower(opts.source)
	}
	if flags.Changed("dsn") {
		cfg.DataSource.DSN = opts.dsn
	}
	if flags.Changed("forward-fill") {
		cfg.DataSource.ForwardFill = opts.forwardFill
	}
	if flags.Changed("base100") {
		cfg.DataSource.Base100 = opts.base100
	}
	if flags.Changed("base-date") {
		cfg.DataSource.BaseDate = opts.baseDate
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}

	switch cfg.DataSource.Kind {
	case datasource.KindPostgres, datasource.KindSQLite:
	default:
		return nil, fmt.Errorf("load writes to postgres or sqlite, not %q (set --source)", cfg.DataSource.Kind)
	}
	if cfg.DataSource.DSN == "" {
		return nil, fmt.Errorf("--dsn is required for the %s source", cfg.DataSource.Kind)
	}
	if opts.path == "" {
		return nil, fmt.Errorf("--path is required")
	}
	return cfg, nil
}
