package etl

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when an ingestion is already in flight on the same dashboard.
	ErrBusy = errors.New("an ingestion is already in progress")
	// ErrClosed is returned once the orchestrator has been torn down.
	ErrClosed = errors.New("dashboard is closed")
)

// UnsupportedFormatError rejects a file by its declared name before reading it.
type UnsupportedFormatError struct {
	FileName string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format %q: please upload a CSV file", e.FileName)
}

// ValidationError reports a structurally invalid CSV.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid CSV structure: " + e.Reason
}

// IOError wraps a failure to read the uploaded content.
type IOError struct {
	FileName string
	Err      error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to read %q: %v", e.FileName, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ProcessingError covers any failure after validation, including the analysis provider.
type ProcessingError struct {
	Stage string
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("failed to process the CSV file (%s): %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Kind names the taxonomy class of err, or "" if it is none of them.
func Kind(err error) string {
	var (
		unsupported *UnsupportedFormatError
		validation  *ValidationError
		ioErr       *IOError
		processing  *ProcessingError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &unsupported):
		return "unsupported_format"
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &ioErr):
		return "io"
	case errors.As(err, &processing):
		return "processing"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrClosed):
		return "closed"
	}
	return ""
}
