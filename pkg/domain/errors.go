package domain

import "fmt"

// ValidationError reports rejected input: a bad shape, a value out of range, or
// an illegal state transition.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...any) ValidationError {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError is returned when an operation references an unknown id.
type NotFoundError struct {
	Entity EntityType `json:"entity"`
	ID     string     `json:"id"`
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}
