package exporter

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"straitpulse/internal/config"
	"straitpulse/internal/dashboard"
	"straitpulse/internal/datasource"
	"straitpulse/pkg/contracts/domain"
)

// LineTerminator selects the record separator of a document
type LineTerminator string

const (
	LF   LineTerminator = "lf"
	CRLF LineTerminator = "crlf"
)

// Export failure reasons besides dashboard.ReasonNoIndicators
const (
	ReasonDataSource = "data source query failed"
	ReasonCancelled  = "export cancelled"
)

const dateColumn = "date"

// Options tunes document formatting and column fetching
type Options struct {
	LineTerminator LineTerminator
	BOM            bool
	// Concurrency bounds the number of indicator columns fetched at once
	Concurrency int
	FilePrefix  string
	Now         func() time.Time
}

// ParseLineTerminator accepts "lf" or "crlf" in any case. An empty string
// selects LF.
func ParseLineTerminator(s string) (LineTerminator, error) {
	switch LineTerminator(strings.ToLower(strings.TrimSpace(s))) {
	case "", LF:
		return LF, nil
	case CRLF:
		return CRLF, nil
	}
	return "", fmt.Errorf("unknown line terminator %q", s)
}

// OptionsFromConfig maps the export config section onto Options
func OptionsFromConfig(cfg config.ExportConfig) (Options, error) {
	lt, err := ParseLineTerminator(cfg.LineTerminator)
	if err != nil {
		return Options{}, err
	}
	return Options{
		LineTerminator: lt,
		BOM:            cfg.BOM,
		Concurrency:    cfg.Concurrency,
		FilePrefix:     cfg.FilePrefix,
	}, nil
}

func (o Options) withDefaults() Options {
	if o.LineTerminator == "" {
		o.LineTerminator = LF
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.FilePrefix == "" {
		o.FilePrefix = "strait-pulse"
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Export serializes the selection captured in snap against src.
//
// The column set and the date span come from snap alone, so a selection
// changed while data is being fetched never leaks into the document.
// Any failure, including cancellation of ctx, yields an *dashboard.ExportError
// and no document.
func Export(ctx context.Context, snap dashboard.Snapshot, src datasource.Source, opts Options) (*Document, error) {
	opts = opts.withDefaults()

	if snap.Empty() {
		return nil, dashboard.NewExportError(dashboard.ReasonNoIndicators, nil)
	}
	if !snap.Range.Valid() {
		return nil, dashboard.NewExportError("invalid range",
			&dashboard.InvalidRangeError{Start: snap.Range.Start, End: snap.Range.End})
	}
	if err := ctx.Err(); err != nil {
		return nil, dashboard.NewExportError(ReasonCancelled, err)
	}

	columns, err := fetchColumns(ctx, snap, src, opts.Concurrency)
	if err != nil {
		return nil, exportFailure(ctx, err)
	}

	body, rows, err := render(ctx, snap, columns, opts)
	if err != nil {
		return nil, exportFailure(ctx, err)
	}

	// A cancel that lands after the last row still discards the document
	if err := ctx.Err(); err != nil {
		return nil, dashboard.NewExportError(ReasonCancelled, err)
	}

	return newDocument(snap, body, rows, opts), nil
}

// fetchColumns loads one value map per indicator, in snapshot order
func fetchColumns(ctx context.Context, snap dashboard.Snapshot, src datasource.Source, limit int) ([]datasource.Values, error) {
	columns := make([]datasource.Values, len(snap.Indicators))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, ind := range snap.Indicators {
		g.Go(func() error {
			vals, err := datasource.Fetch(gctx, src, ind.ID, snap.Range)
			if err != nil {
				return fmt.Errorf("indicator %s: %w", ind.ID, err)
			}
			columns[i] = vals
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return columns, nil
}

// render writes the header and one row per calendar day
func render(ctx context.Context, snap dashboard.Snapshot, columns []datasource.Values, opts Options) ([]byte, int, error) {
	var buf bytes.Buffer
	if opts.BOM {
		buf.WriteString(utf8BOM)
	}

	w := csv.NewWriter(&buf)
	w.UseCRLF = opts.LineTerminator == CRLF

	header := make([]string, 0, len(snap.Indicators)+1)
	header = append(header, dateColumn)
	header = append(header, snap.Labels()...)
	if err := w.Write(header); err != nil {
		return nil, 0, fmt.Errorf("write header: %w", err)
	}

	rows := 0
	record := make([]string, len(header))
	for _, day := range snap.Range.Dates() {
		if rows%512 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
		}

		record[0] = domain.FormatDate(day)
		for i, col := range columns {
			record[i+1] = formatCell(col.Get(day))
		}
		if err := w.Write(record); err != nil {
			return nil, 0, fmt.Errorf("write row %s: %w", record[0], err)
		}
		rows++
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, 0, fmt.Errorf("flush: %w", err)
	}
	return buf.Bytes(), rows, nil
}

func exportFailure(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return dashboard.NewExportError(ReasonCancelled, err)
	}
	return dashboard.NewExportError(ReasonDataSource, err)
}
