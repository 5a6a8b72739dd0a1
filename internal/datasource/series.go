package datasource

import (
	"sort"
	"time"

	"straitpulse/pkg/contracts/domain"
)

// Series is a daily price series in ascending date order
type Series []domain.MarketPoint

// TransformOptions selects the post-load transforms applied to file feeds
type TransformOptions struct {
	ForwardFill bool      `yaml:"forward_fill"`
	Base100     bool      `yaml:"base100"`
	BaseDate    time.Time `yaml:"-"`
}

// Apply runs Clean and then the selected transforms
func (o TransformOptions) Apply(points []domain.MarketPoint) Series {
	s := Clean(points)
	if o.ForwardFill {
		s = ForwardFill(s)
	}
	if o.Base100 {
		s = Base100(s, o.BaseDate)
	}
	return s
}

// Clean normalizes dates to UTC calendar days, drops points without a
// close, keeps the last point of duplicated days and sorts ascending.
func Clean(points []domain.MarketPoint) Series {
	byDay := make(map[time.Time]domain.MarketPoint, len(points))
	for _, p := range points {
		if !p.HasClose {
			continue
		}
		p.Date = domain.CalendarDate(p.Date.UTC())
		byDay[p.Date] = p
	}

	out := make(Series, 0, len(byDay))
	for _, p := range byDay {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// ForwardFill reindexes a clean series to every calendar day between its
// first and last point. Prices carry forward; filled days have zero volume.
func ForwardFill(s Series) Series {
	if len(s) == 0 {
		return Series{}
	}

	span := domain.DateRange{Start: s[0].Date, End: s[len(s)-1].Date}
	out := make(Series, 0, span.Days())

	next := 0
	var last domain.MarketPoint
	for _, day := range span.Dates() {
		if next < len(s) && s[next].Date.Equal(day) {
			last = s[next]
			out = append(out, last)
			next++
			continue
		}
		filled := last
		filled.Date = day
		filled.Volume = 0
		out = append(out, filled)
	}
	return out
}

// Base100 rebases closes so the base day equals 100. The base is the first
// point on or after base (the first point when base is zero). A missing or
// zero base close leaves every value unset.
func Base100(s Series, base time.Time) Series {
	out := make(Series, len(s))
	copy(out, s)
	for i := range out {
		out[i].Value, out[i].HasValue = 0, false
	}
	if len(out) == 0 {
		return out
	}

	idx := 0
	if !base.IsZero() {
		b := domain.CalendarDate(base)
		idx = sort.Search(len(out), func(i int) bool {
			return !out[i].Date.Before(b)
		})
		if idx == len(out) {
			return out
		}
	}

	baseClose := out[idx].Close
	if baseClose == 0 {
		return out
	}
	for i := range out {
		out[i].Value = out[i].Close / baseClose * 100
		out[i].HasValue = true
	}
	return out
}

// Values projects the series to its observed numbers
func (s Series) Values() Values {
	out := make(Values, len(s))
	for _, p := range s {
		if v, ok := p.Observed(); ok {
			out[domain.FormatDate(p.Date)] = v
		}
	}
	return out
}
