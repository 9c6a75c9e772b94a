package xerrors

import "errors"

// Repository and request sentinels. Services translate them into a Kind
// before they reach a handler.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrDuplicateEntry = errors.New("duplicate entry")
	ErrUnauthorized   = errors.New("unauthorized access")
	ErrInvalidInput   = errors.New("invalid input")
)
