package datasource

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"straitpulse/pkg/contracts/domain"
)

// LoadWorkbook reads a workbook with one sheet per symbol. Each sheet has a
// header row with a Date column and a Value or Close column.
func LoadWorkbook(path string, symbols map[string]string, opts TransformOptions) (map[string]Values, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	out := make(map[string]Values)
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		points, err := parseSheet(rows)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheet, err)
		}
		if points == nil {
			continue
		}
		vals := opts.Apply(points).Values()
		for _, id := range indicatorsFor(symbols, strings.TrimSpace(sheet)) {
			out[id] = vals
		}
	}
	return out, nil
}

func parseSheet(rows [][]string) ([]domain.MarketPoint, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	dateCol, valueCol, closeCol := -1, -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "date":
			dateCol = i
		case "value":
			valueCol = i
		case "close":
			closeCol = i
		}
	}
	if dateCol < 0 || (valueCol < 0 && closeCol < 0) {
		// Sheets without a Date/Value table (notes, charts) are skipped
		return nil, nil
	}

	cell := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return row[i]
	}

	points := make([]domain.MarketPoint, 0, len(rows)-1)
	for n, row := range rows[1:] {
		raw := strings.TrimSpace(cell(row, dateCol))
		if raw == "" {
			continue
		}
		d, err := parseCellDate(raw)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", n+2, err)
		}

		p := domain.MarketPoint{Date: d}
		p.Close, p.HasClose = parseNumber(cell(row, closeCol))
		p.Value, p.HasValue = parseNumber(cell(row, valueCol))
		if !p.HasClose && p.HasValue {
			// Value-only sheets still need a close to survive Clean
			p.Close, p.HasClose = p.Value, true
		}
		points = append(points, p)
	}
	return points, nil
}

// parseCellDate accepts text dates and raw Excel serial numbers
func parseCellDate(raw string) (time.Time, error) {
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date serial %q: %w", raw, err)
		}
		return domain.CalendarDate(t), nil
	}
	return parseDate(raw)
}
