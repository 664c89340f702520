package models

import "fmt"

// ValidationError reports a single invalid field on an inbound request
// or model. Handlers map it to a field-level 400 response.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
