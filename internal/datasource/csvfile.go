package datasource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"straitpulse/pkg/contracts/domain"
)

var dateLayouts = []string{
	domain.DateLayout,
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-06",
	time.RFC3339,
}

// ParseStooqCSV reads a daily price file with a Date,Open,High,Low,Close,Volume
// header (column order and case are free, Value is optional). Rows may come
// in any order; empty or unparsable closes are kept with HasClose=false so
// that Clean can drop them.
func ParseStooqCSV(r io.Reader) ([]domain.MarketPoint, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	dateCol, ok := cols["date"]
	if !ok {
		return nil, fmt.Errorf("missing Date column in header %v", header)
	}

	var points []domain.MarketPoint
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		if dateCol >= len(record) {
			continue
		}
		d, err := parseDate(record[dateCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		p := domain.MarketPoint{Date: d}
		p.Open, _ = parseNumber(field("open"))
		p.High, _ = parseNumber(field("high"))
		p.Low, _ = parseNumber(field("low"))
		p.Close, p.HasClose = parseNumber(field("close"))
		if vol, ok := parseNumber(field("volume")); ok {
			p.Volume = int64(vol)
		}
		p.Value, p.HasValue = parseNumber(field("value"))
		points = append(points, p)
	}
	return points, nil
}

// LoadCSVDir reads every <symbol>.csv file in dir and maps it to indicators
func LoadCSVDir(dir string, symbols map[string]string, opts TransformOptions) (map[string]Values, error) {
	files, err := csvFiles(dir)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Values)
	for _, f := range files {
		points, err := readCSVFile(f.path)
		if err != nil {
			return nil, err
		}
		vals := opts.Apply(points).Values()
		for _, id := range indicatorsFor(symbols, f.symbol) {
			out[id] = vals
		}
	}
	return out, nil
}

// ImportCSVDir cleans and transforms every <symbol>.csv file in dir and
// upserts the series into dst under its file symbol. It returns the number
// of points written per symbol; symbols written before a failure are kept.
func ImportCSVDir(ctx context.Context, dir string, dst *SQLSource, opts TransformOptions) (map[string]int, error) {
	files, err := csvFiles(dir)
	if err != nil {
		return nil, err
	}

	written := make(map[string]int, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		points, err := readCSVFile(f.path)
		if err != nil {
			return written, err
		}
		series := opts.Apply(points)
		if err := dst.Upsert(ctx, f.symbol, series); err != nil {
			return written, err
		}
		written[f.symbol] = len(series)
	}
	return written, nil
}

type csvFile struct {
	symbol string
	path   string
}

// csvFiles lists the *.csv files of dir in name order
func csvFiles(dir string) ([]csvFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir %s: %w", dir, err)
	}

	var files []csvFile
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		files = append(files, csvFile{
			symbol: strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
			path:   filepath.Join(dir, e.Name()),
		})
	}
	return files, nil
}

func readCSVFile(path string) ([]domain.MarketPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	points, err := ParseStooqCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return points, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.CalendarDate(t.UTC()), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
