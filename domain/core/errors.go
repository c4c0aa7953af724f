package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Data-format errors: missing file or column, unparseable values
	ErrDataFormat    = errors.New("data format error")
	ErrMissingColumn = fmt.Errorf("%w: missing column", ErrDataFormat)

	// Numeric errors: undefined statistics
	ErrNumeric           = errors.New("numeric error")
	ErrUndefinedAdjusted = fmt.Errorf("%w: adjusted r2 undefined", ErrNumeric)
	ErrConstantTarget    = fmt.Errorf("%w: constant target", ErrNumeric)

	// Resource errors: tracker unreachable, file write failure
	ErrResource = errors.New("resource error")

	// Argument errors
	ErrInvalidArgument = errors.New("invalid argument")

	// Not found errors
	ErrNotFound     = errors.New("resource not found")
	ErrRunNotFound  = fmt.Errorf("%w: run", ErrNotFound)
	ErrTaskNotFound = fmt.Errorf("%w: task", ErrNotFound)

	// Orchestration errors
	ErrUpstreamFailed = errors.New("upstream task failed")
	ErrRunActive      = errors.New("a pipeline run is already active")
)

// Error constructors with context
func NewDataFormatError(source string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrDataFormat, source, reason)
}

func NewMissingColumnError(column string) error {
	return fmt.Errorf("%w %q", ErrMissingColumn, column)
}

func NewNumericError(quantity string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrNumeric, quantity, reason)
}

func NewResourceError(resource string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrResource, resource, err)
}

func NewInvalidArgumentError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidArgument, field, reason)
}

func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

// Error checking helpers
func IsDataFormatError(err error) bool {
	return errors.Is(err, ErrDataFormat)
}

func IsNumericError(err error) bool {
	return errors.Is(err, ErrNumeric)
}

func IsResourceError(err error) bool {
	return errors.Is(err, ErrResource)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
