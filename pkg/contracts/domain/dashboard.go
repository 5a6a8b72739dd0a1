package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the wire format for calendar dates
const DateLayout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

// Indicator represents a named time-series feed the dashboard can display
type Indicator struct {
	ID             string   `json:"id" yaml:"id" validate:"required"`
	Label          string   `json:"label" yaml:"label" validate:"required"`
	DefaultEnabled bool     `json:"default_enabled" yaml:"default_enabled"`
	PanelIDs       []string `json:"panel_ids" yaml:"panels" validate:"dive,required"`
	Unit           string   `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// FeedsPanel reports whether the indicator contributes to the given panel
func (i Indicator) FeedsPanel(panelID string) bool {
	for _, id := range i.PanelIDs {
		if id == panelID {
			return true
		}
	}
	return false
}

// Panel represents a visual section of the dashboard.
// RequiredIndicatorIDs lists the indicators of which at least one must be
// active for the panel to show data. An empty list means the panel always renders.
type Panel struct {
	ID                   string   `json:"id" yaml:"id" validate:"required"`
	Title                string   `json:"title" yaml:"title" validate:"required"`
	Kind                 string   `json:"kind,omitempty" yaml:"kind,omitempty"`
	RequiredIndicatorIDs []string `json:"required_indicator_ids" yaml:"requires"`
}

// DateRange is an inclusive span of calendar dates
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange builds a range from two instants, discarding time of day
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: CalendarDate(start), End: CalendarDate(end)}
}

// TrailingRange returns the range of the last n days ending on end
func TrailingRange(end time.Time, days int) DateRange {
	if days < 1 {
		days = 1
	}
	e := CalendarDate(end)
	return DateRange{Start: e.AddDate(0, 0, -(days - 1)), End: e}
}

// Valid reports whether start is not after end
func (r DateRange) Valid() bool {
	return !r.Start.After(r.End)
}

// Days returns the number of calendar days in the range, both ends included
func (r DateRange) Days() int {
	if !r.Valid() {
		return 0
	}
	// Unix seconds, not time.Duration, which saturates after ~292 years
	start, end := CalendarDate(r.Start).Unix(), CalendarDate(r.End).Unix()
	return int((end-start)/secondsPerDay) + 1
}

// Dates returns every calendar day in the range in ascending order
func (r DateRange) Dates() []time.Time {
	n := r.Days()
	dates := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		dates = append(dates, r.Start.AddDate(0, 0, i))
	}
	return dates
}

// Contains reports whether the calendar date of t falls inside the range
func (r DateRange) Contains(t time.Time) bool {
	d := CalendarDate(t)
	return !d.Before(r.Start) && !d.After(r.End)
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", FormatDate(r.Start), FormatDate(r.End))
}

// MarshalJSON encodes both bounds as YYYY-MM-DD
func (r DateRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start string `json:"start"`
		End   string `json:"end"`
		Days  int    `json:"days"`
	}{FormatDate(r.Start), FormatDate(r.End), r.Days()})
}

// UnmarshalJSON decodes YYYY-MM-DD bounds
func (r *DateRange) UnmarshalJSON(data []byte) error {
	var raw struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	start, err := ParseDate(raw.Start)
	if err != nil {
		return err
	}
	end, err := ParseDate(raw.End)
	if err != nil {
		return err
	}
	r.Start, r.End = start, end
	return nil
}

// CalendarDate strips the time of day, keeping the date as seen in t's location
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a calendar date
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected %s", s, DateLayout)
	}
	return t, nil
}

// FormatDate renders a calendar date as YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
