package extract

import "fmt"

// MissingFieldError reports a structurally required element or attribute
// that is absent from a document. It is fatal to that document only.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("required field %q not found in document", e.Field)
}

// MalformedIdentifierError reports a value that was expected to parse as a
// number but did not.
type MalformedIdentifierError struct {
	Field string
	Value string
	Err   error
}

func (e *MalformedIdentifierError) Error() string {
	return fmt.Sprintf("malformed %s %q", e.Field, e.Value)
}

// Unwrap exposes the underlying parse error, if any.
func (e *MalformedIdentifierError) Unwrap() error { return e.Err }
