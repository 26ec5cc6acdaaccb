package query

import "errors"

var (
	// ErrInvalidArgument is returned for shorthands of the wrong shape.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidValue is returned for operator values that cannot be used,
	// such as a scalar or empty list for IN.
	ErrInvalidValue = errors.New("invalid value")

	// ErrUnsupported is returned by consumers that meet a conjunction,
	// direction or aggregate they do not know.
	ErrUnsupported = errors.New("unsupported query element")
)

// IsValidationError reports whether err was caused by a malformed query.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrInvalidValue) ||
		errors.Is(err, ErrUnsupported)
}
