package domain

import (
	"time"
)

// Asset maps an indicator feed to its stored symbol
type Asset struct {
	ID     int64  `json:"id" db:"id"`
	Symbol string `json:"symbol" db:"symbol" validate:"required"`
}

// MarketPoint is one daily observation of a feed.
// HasClose is false for rows the upstream delivered without a close.
type MarketPoint struct {
	Date     time.Time `json:"date" db:"date" validate:"required"`
	Open     float64   `json:"open" db:"open"`
	High     float64   `json:"high" db:"high"`
	Low      float64   `json:"low" db:"low"`
	Close    float64   `json:"close" db:"close"`
	Volume   int64     `json:"volume" db:"volume" validate:"min=0"`
	Value    float64   `json:"value,omitempty" db:"value"`
	HasClose bool      `json:"-" db:"-"`
	HasValue bool      `json:"-" db:"-"`
}

// Observed returns the number a dashboard shows for this point:
// the derived value when present, the close otherwise.
func (p MarketPoint) Observed() (float64, bool) {
	if p.HasValue {
		return p.Value, true
	}
	if p.HasClose {
		return p.Close, true
	}
	return 0, false
}
