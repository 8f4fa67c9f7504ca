package domain

// ValidationError reports a single invalid input field. Records failing
// validation are never persisted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
