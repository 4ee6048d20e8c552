package entities

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is. Every typed error below unwraps to one of them.
var (
	ErrDatasetNotLoaded = errors.New("dataset not loaded")
	ErrColumnNotFound   = errors.New("column not found")
	ErrInvalidSpec      = errors.New("invalid chart spec")
	ErrUpstream         = errors.New("upstream failure")
	ErrInvalidDataset   = errors.New("invalid dataset")
	ErrDatasetTooLarge  = errors.New("dataset too large")
)

// DatasetNotLoadedError reports a session with no live dataset.
type DatasetNotLoadedError struct {
	Session string
}

func (e *DatasetNotLoadedError) Error() string {
	return fmt.Sprintf("No CSV data loaded for session %s", e.Session)
}

func (e *DatasetNotLoadedError) Unwrap() error { return ErrDatasetNotLoaded }

// ColumnNotFoundError reports a column absent from the dataset.
type ColumnNotFoundError struct {
	Column string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("Column '%s' not found in dataset", e.Column)
}

func (e *ColumnNotFoundError) Unwrap() error { return ErrColumnNotFound }

// InvalidSpecError reports a malformed chart specification or filter.
type InvalidSpecError struct {
	Reason string
}

func (e *InvalidSpecError) Error() string {
	return "Invalid chart spec: " + e.Reason
}

func (e *InvalidSpecError) Unwrap() error { return ErrInvalidSpec }

// UpstreamError wraps a language-model or network failure.
type UpstreamError struct {
	Reason string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

// Is matches ErrUpstream in addition to the wrapped cause.
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

func (e *UpstreamError) Unwrap() error { return e.Err }

// InvalidDatasetError reports input that could not be parsed as a table.
type InvalidDatasetError struct {
	Reason string
}

func (e *InvalidDatasetError) Error() string {
	if e.Reason == "" {
		return "Invalid CSV format"
	}
	return "Invalid CSV format: " + e.Reason
}

func (e *InvalidDatasetError) Unwrap() error { return ErrInvalidDataset }

// DatasetTooLargeError reports input above the configured size cap.
type DatasetTooLargeError struct {
	MaxBytes int64
}

func (e *DatasetTooLargeError) Error() string {
	return fmt.Sprintf("CSV file exceeds maximum size of %dMB", e.MaxBytes/(1024*1024))
}

func (e *DatasetTooLargeError) Unwrap() error { return ErrDatasetTooLarge }

// UserMessage returns a short message that is safe to show to an end user.
func UserMessage(err error) string {
	var (
		notLoaded *DatasetNotLoadedError
		column    *ColumnNotFoundError
		spec      *InvalidSpecError
		dataset   *InvalidDatasetError
		tooLarge  *DatasetTooLargeError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &notLoaded):
		return "No CSV data loaded. Please upload a CSV file first."
	case errors.As(err, &column):
		return column.Error()
	case errors.As(err, &spec):
		return spec.Error()
	case errors.As(err, &dataset):
		return dataset.Error()
	case errors.As(err, &tooLarge):
		return tooLarge.Error()
	case errors.Is(err, ErrUpstream):
		return "The language model is unavailable right now. Please try again later."
	}
	return "Something went wrong while processing the request."
}
