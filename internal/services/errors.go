package services

import "errors"

// Service errors
var (
	// ErrNoSource is returned when an export is requested without a data source
	ErrNoSource = errors.New("no data source configured")

	// ErrNilController is returned by constructors given a nil controller
	ErrNilController = errors.New("dashboard controller is required")
)
