package datasource

import (
	"context"
	"errors"
	"time"

	"straitpulse/pkg/contracts/domain"
)

// Source kinds accepted by Open
const (
	KindMemory   = "memory"
	KindCSV      = "csv"
	KindXLSX     = "xlsx"
	KindPostgres = "postgres"
	KindSQLite   = "sqlite"
)

var (
	// ErrClosed is returned by sources used after Close
	ErrClosed = errors.New("data source closed")
	// ErrUnknownKind is returned by Open for an unsupported source kind
	ErrUnknownKind = errors.New("unknown data source kind")
)

// Values maps YYYY-MM-DD dates to observed numbers for one indicator
type Values map[string]float64

// Get returns the value for a calendar date
func (v Values) Get(date time.Time) (float64, bool) {
	f, ok := v[domain.FormatDate(date)]
	return f, ok
}

// Source answers point queries for indicator values. A missing value is
// reported with ok=false and a nil error.
type Source interface {
	ValueAt(ctx context.Context, indicatorID string, date time.Time) (value float64, ok bool, err error)
}

// RangeSource is a Source that can answer a whole date range in one call
type RangeSource interface {
	Source
	Range(ctx context.Context, indicatorID string, r domain.DateRange) (Values, error)
}

// Reloader is implemented by sources backed by files that can be re-read
type Reloader interface {
	Reload(ctx context.Context) error
}

// Fetch returns the values of one indicator over a range, using the batch
// path when the source supports it and point queries otherwise.
func Fetch(ctx context.Context, src Source, indicatorID string, r domain.DateRange) (Values, error) {
	if rs, ok := src.(RangeSource); ok {
		return rs.Range(ctx, indicatorID, r)
	}

	out := make(Values, r.Days())
	for _, d := range r.Dates() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, ok, err := src.ValueAt(ctx, indicatorID, d)
		if err != nil {
			return nil, err
		}
		if ok {
			out[domain.FormatDate(d)] = v
		}
	}
	return out, nil
}

// symbolFor resolves the stored symbol of an indicator; unmapped ids are their own symbol
func symbolFor(symbols map[string]string, indicatorID string) string {
	if s, ok := symbols[indicatorID]; ok && s != "" {
		return s
	}
	return indicatorID
}

// indicatorsFor inverts the symbol map. Symbols with no explicit mapping
// resolve to an indicator of the same name.
func indicatorsFor(symbols map[string]string, symbol string) []string {
	var ids []string
	for id, s := range symbols {
		if s == symbol {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		ids = append(ids, symbol)
	}
	return ids
}
