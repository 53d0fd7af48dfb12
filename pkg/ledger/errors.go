package ledger

import (
	"errors"
	"fmt"
)

// ErrValidation marks a precondition failure detected before any remote call.
var ErrValidation = errors.New("validation failed")

var (
	// ErrMemberNotFound is returned when an update targets an unknown member.
	ErrMemberNotFound = fmt.Errorf("%w: member not found", ErrValidation)

	// ErrMissingID is returned when the target member row has no identifier.
	ErrMissingID = fmt.Errorf("%w: member record has no identifier", ErrValidation)
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
