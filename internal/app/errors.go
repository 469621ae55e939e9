package app

import (
	"errors"
	"fmt"
	"net/http"

	"annotator/internal/domain"
)

// DomainError is an error with its HTTP status and the machine-readable code
// sent to clients.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
	cause   error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is lets callers match on the shared sentinels without knowing codes.
func (e *DomainError) Is(target error) bool {
	switch e.Status {
	case http.StatusNotFound:
		return target == domain.ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return target == domain.ErrValidation
	}
	return false
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// wrapDomainError keeps cause for logs; clients only see code and message.
func wrapDomainError(cause error, status int, code, message string) *DomainError {
	e := domainError(status, code, message, nil)
	e.cause = cause
	return e
}

func asDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
