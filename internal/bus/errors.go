package bus

// runNotFoundError signals an unknown run id for 404 mapping.
type runNotFoundError struct{ id string }

func (e runNotFoundError) Error() string { return "run not found: " + e.id }

// ErrRunNotFound constructs a runNotFoundError.
func ErrRunNotFound(id string) error { return runNotFoundError{id: id} }

// IsRunNotFound reports whether the error indicates a missing run id.
func IsRunNotFound(err error) bool {
	_, ok := err.(runNotFoundError)
	return ok
}
