package data

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrMalformed          = errors.New("malformed result file")
	ErrMissingField       = errors.New("required field missing")
	ErrInconsistentLength = errors.New("inconsistent series length")
	ErrFetch              = errors.New("default file fetch failed")
	ErrNotFound           = errors.New("result file not found")
	ErrInvalidName        = errors.New("invalid result file name")
)

// FormatErrorKind classifies a rejected result file
type FormatErrorKind string

const (
	KindMalformed          FormatErrorKind = "malformed"
	KindMissingField       FormatErrorKind = "missing_field"
	KindInconsistentLength FormatErrorKind = "inconsistent_length"
)

// FormatError reports why a single result file could not be parsed
type FormatError struct {
	Kind     FormatErrorKind
	Field    string
	Expected int
	Got      int
	Err      error
}

func (e *FormatError) Error() string {
	switch e.Kind {
	case KindInconsistentLength:
		return fmt.Sprintf("inconsistent length: %s has %d entries, expected %d", e.Field, e.Got, e.Expected)
	case KindMissingField:
		if e.Field == "" {
			return "required field missing"
		}
		return fmt.Sprintf("required field missing or empty: %s", e.Field)
	default:
		if e.Err != nil {
			return fmt.Sprintf("malformed result file: %v", e.Err)
		}
		return "malformed result file"
	}
}

// Unwrap returns the underlying decode error, if any
func (e *FormatError) Unwrap() error { return e.Err }

// Is lets errors.Is match the kind sentinels
func (e *FormatError) Is(target error) bool {
	switch target {
	case ErrMalformed:
		return e.Kind == KindMalformed
	case ErrMissingField:
		return e.Kind == KindMissingField
	case ErrInconsistentLength:
		return e.Kind == KindInconsistentLength
	}
	return false
}

// FetchError reports a failed default-file download
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// Unwrap returns the transport error, if any
func (e *FetchError) Unwrap() error { return e.Err }

// Is matches ErrFetch
func (e *FetchError) Is(target error) bool { return target == ErrFetch }
