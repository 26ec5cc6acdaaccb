package executor

import "errors"

// Statement errors. The wire server maps them to SQLSTATE codes.
var (
	ErrSyntax           = errors.New("syntax error")
	ErrUndefinedTable   = errors.New("undefined table")
	ErrDuplicateTable   = errors.New("duplicate table")
	ErrUndefinedColumn  = errors.New("undefined column")
	ErrUniqueViolation  = errors.New("unique violation")
	ErrNotNullViolation = errors.New("not-null violation")
)
