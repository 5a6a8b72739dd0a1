package exporter

import (
	"math"
	"strconv"
)

// formatCell renders a value for CSV output; absent values are empty fields
func formatCell(v float64, ok bool) string {
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return formatFloat(v)
}

// formatFloat uses the shortest representation that round-trips, so the
// same value always produces the same bytes
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
