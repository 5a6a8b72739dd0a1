package dashboard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"straitpulse/pkg/contracts/domain"
)

// ReasonNoIndicators is the ExportError reason when the selection is empty
const ReasonNoIndicators = "no indicators selected"

// ConfigurationError reports an inconsistent catalog or panel registry.
// It is fatal: the dashboard refuses to start with it.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "invalid dashboard configuration: " + strings.Join(e.Problems, "; ")
}

// NotFoundError reports an unknown indicator or panel id
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// InvalidRangeError reports a date range whose start is after its end
type InvalidRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid date range: start %s is after end %s",
		domain.FormatDate(e.Start), domain.FormatDate(e.End))
}

// ExportError reports a failed export. Err is the data source or
// cancellation cause, nil when the selection itself was unusable.
type ExportError struct {
	Reason string
	Err    error
}

func (e *ExportError) Error() string {
	if e.Err == nil {
		return "export failed: " + e.Reason
	}
	return fmt.Sprintf("export failed: %s: %v", e.Reason, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// NoIndicators reports whether the export failed because nothing was selected
func (e *ExportError) NoIndicators() bool {
	return e.Reason == ReasonNoIndicators && e.Err == nil
}

// NewExportError wraps a cause with a reason
func NewExportError(reason string, err error) *ExportError {
	return &ExportError{Reason: reason, Err: err}
}

// IsNotFound reports whether err is or wraps a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsInvalidRange reports whether err is or wraps an InvalidRangeError
func IsInvalidRange(err error) bool {
	var ir *InvalidRangeError
	return errors.As(err, &ir)
}

// IsConfiguration reports whether err is or wraps a ConfigurationError
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsExport reports whether err is or wraps an ExportError
func IsExport(err error) bool {
	var ee *ExportError
	return errors.As(err, &ee)
}
