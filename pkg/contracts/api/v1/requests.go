// Package api contains the HTTP contract of the dashboard API.
// Version v1 represents the current stable API version.
package api

import (
	"time"

	"straitpulse/pkg/contracts/domain"
)

// SetRangeRequest replaces the selected date range. Ordering of the two
// bounds is checked by the controller, not here, so an inverted range
// surfaces as an invalid-range problem rather than a field error.
type SetRangeRequest struct {
	Start string `json:"start" validate:"required,calendar_date"`
	End   string `json:"end" validate:"required,calendar_date"`
}

// Dates parses both bounds. Call after validation.
func (r SetRangeRequest) Dates() (time.Time, time.Time, error) {
	start, err := domain.ParseDate(r.Start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := domain.ParseDate(r.End)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// SetIndicatorsRequest replaces the whole active set
type SetIndicatorsRequest struct {
	Indicators []string `json:"indicators" validate:"dive,indicator_id"`
}
