package domain

import "errors"

// Sentinels shared by the backend and its client; match with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
)
