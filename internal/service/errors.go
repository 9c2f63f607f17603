package service

import (
	"errors"
	"fmt"

	"github.com/nurpe/billdesk/internal/store"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrFetch                = errors.New("fetch failed")
	ErrSave                 = errors.New("save failed")
	ErrDelete               = errors.New("delete failed")
	ErrNotFound             = errors.New("not found")
	ErrUnauthenticated      = errors.New("not signed in")
	ErrConfirmationNotFound = errors.New("confirmation not found")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// remoteError tags a store failure with the operation kind while keeping the cause inspectable.
func remoteError(kind, err error) error {
	return fmt.Errorf("%w: %w", kind, err)
}

func isPermissionDenied(err error) bool {
	return errors.Is(err, store.ErrPermissionDenied)
}
