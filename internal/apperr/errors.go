// Package apperr defines the error kinds reported to callers of the item store.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrIndex            = errors.New("index out of range")
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrPublish          = errors.New("publish failed")
)

// Display kinds returned by KindOf.
const (
	KindValidation       = "ValidationError"
	KindIndex            = "IndexError"
	KindNotFound         = "NotFound"
	KindPermissionDenied = "PermissionDenied"
	KindPublish          = "PublishError"
	KindInternal         = "InternalError"
)

// PublishError reports a failed version-control step together with the
// output the command produced.
type PublishError struct {
	Step   string
	Output string
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish: %s failed: %v", e.Step, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrPublish) match any *PublishError.
func (e *PublishError) Is(target error) bool { return target == ErrPublish }

// KindOf maps err to one of the display kinds.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrIndex):
		return KindIndex
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrPublish):
		return KindPublish
	default:
		return KindInternal
	}
}
