// Package errors provides severity-aware error types.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// GreeneryError is a structured error with context.
type GreeneryError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Field       string   `json:"field,omitempty"`
	Subject     string   `json:"subject,omitempty"`
	Recoverable bool     `json:"recoverable"`
}

func (e *GreeneryError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("[%s] %s: %s (subject: %s)", e.Severity, e.Code, e.Message, e.Subject)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
}

// Error codes
const (
	ErrCodeMissingField        = "MISSING_FIELD"
	ErrCodeInvalidField        = "INVALID_FIELD"
	ErrCodeUnknownCity         = "UNKNOWN_CITY"
	ErrCodeUnknownLocation     = "UNKNOWN_LOCATION"
	ErrCodeModelLoadFailed     = "MODEL_LOAD_FAILED"
	ErrCodePredictionFailed    = "PREDICTION_FAILED"
	ErrCodeRasterDecodeFailed  = "RASTER_DECODE_FAILED"
	ErrCodeRasterShapeMismatch = "RASTER_SHAPE_MISMATCH"
)

// NewMissingFieldError creates an error for a required input field that was not supplied.
func NewMissingFieldError(field, city string) *GreeneryError {
	return &GreeneryError{
		Code:        ErrCodeMissingField,
		Message:     fmt.Sprintf("Missing required field: %s", field),
		Severity:    SeverityFatal,
		Field:       field,
		Subject:     city,
		Recoverable: false,
	}
}

// NewInvalidFieldError creates an error for a field whose value is out of range.
func NewInvalidFieldError(field, reason string) *GreeneryError {
	return &GreeneryError{
		Code:        ErrCodeInvalidField,
		Message:     fmt.Sprintf("Invalid value for %s: %s", field, reason),
		Severity:    SeverityError,
		Field:       field,
		Recoverable: true,
	}
}

// NewUnknownCityError creates an error for a city missing from the data source.
func NewUnknownCityError(city string) *GreeneryError {
	return &GreeneryError{
		Code:        ErrCodeUnknownCity,
		Message:     fmt.Sprintf("No observations for city: %s", city),
		Severity:    SeverityError,
		Subject:     city,
		Recoverable: true,
	}
}

// NewUnknownLocationError creates an error for a location the model was not trained on.
func NewUnknownLocationError(location string) *GreeneryError {
	return &GreeneryError{
		Code:        ErrCodeUnknownLocation,
		Message:     fmt.Sprintf("Location '%s' is invalid or was not part of the model training", location),
		Severity:    SeverityError,
		Field:       "location",
		Subject:     location,
		Recoverable: true,
	}
}

// New creates an error with an arbitrary code.
func New(code string, severity Severity, format string, args ...any) *GreeneryError {
	return &GreeneryError{
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Severity: severity,
	}
}

// CodeOf returns the code of the first GreeneryError in err's chain, or "".
func CodeOf(err error) string {
	var ge *GreeneryError
	if stderrors.As(err, &ge) {
		return ge.Code
	}
	return ""
}
