package services

import "errors"

var (
	// ErrSheetsUnavailable is returned when no Google Sheets client is configured.
	ErrSheetsUnavailable = errors.New("google sheets import is not configured")
	// ErrNoAlgorithms is returned by a batch run without algorithms.
	ErrNoAlgorithms = errors.New("no algorithms requested")
	// ErrInvalidInput is returned for requests the handlers could not catch.
	ErrInvalidInput = errors.New("invalid input")
)
