package workspace

import (
	"errors"
	"fmt"

	"annotator/internal/domain"
)

var (
	// ErrStale is returned when a backend response arrives for an article,
	// document revision or load that is no longer current. The response has
	// been discarded.
	ErrStale = errors.New("stale response discarded")
	// ErrNotTracked is returned for an annotation id that is not in the
	// current list.
	ErrNotTracked = errors.New("annotation not tracked")
	// ErrNoArticle is returned by operations that need a loaded article.
	ErrNoArticle = errors.New("no article loaded")
)

// ValidationError reports missing input for a mutation. No backend call is
// made when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is lets callers match any ValidationError with domain.ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == domain.ErrValidation
}

type NoticeKind string

const (
	KindValidation NoticeKind = "validation"
	KindNotFound   NoticeKind = "not_found"
	KindTransport  NoticeKind = "transport"
)

// Notice is the user-facing report of a failed operation.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Op      string     `json:"op"`
	Message string     `json:"message"`
}

type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) {
	f(n)
}

func classify(err error) NoticeKind {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, domain.ErrValidation):
		return KindValidation
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, ErrNotTracked):
		return KindNotFound
	default:
		return KindTransport
	}
}
