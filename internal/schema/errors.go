package schema

import (
	"errors"
	"fmt"
)

// ErrInvalid matches every *Error via errors.Is.
var ErrInvalid = errors.New("invalid schema")

// Error reports a structurally invalid schema source. Operation is empty when
// the problem is with the document as a whole.
type Error struct {
	Operation string
	Reason    string
}

func (e *Error) Error() string {
	if e.Operation == "" {
		return "schema: " + e.Reason
	}
	return fmt.Sprintf("schema: operation %s: %s", e.Operation, e.Reason)
}

// Is reports whether target is ErrInvalid.
func (e *Error) Is(target error) bool {
	return target == ErrInvalid
}

func docError(format string, args ...any) error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

func opError(op, format string, args ...any) error {
	return &Error{Operation: op, Reason: fmt.Sprintf(format, args...)}
}
