package apperrors

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrUnauthorized   = errors.New("authentication required")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidID      = errors.New("invalid id")
	ErrInvalidInput   = errors.New("invalid input")
	ErrStaleReference = errors.New("submission references content that no longer exists")
)
