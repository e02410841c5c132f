package preview

// previewNotFoundError signals an unknown or not-yet-ready preview for
// 404 mapping.
type previewNotFoundError struct{ id string }

func (e previewNotFoundError) Error() string { return "preview not found: " + e.id }

// ErrPreviewNotFound constructs a previewNotFoundError.
func ErrPreviewNotFound(id string) error { return previewNotFoundError{id: id} }

// IsPreviewNotFound reports whether the error indicates a missing preview.
func IsPreviewNotFound(err error) bool {
	_, ok := err.(previewNotFoundError)
	return ok
}

// renderUnavailableError signals that no renderer is wired, so the HTTP
// layer can return 503 instead of 500.
type renderUnavailableError struct{ msg string }

func (e renderUnavailableError) Error() string { return e.msg }

// ErrRenderUnavailable constructs a renderUnavailableError.
func ErrRenderUnavailable(msg string) error { return renderUnavailableError{msg: msg} }

// IsRenderUnavailable reports whether err indicates a missing renderer.
func IsRenderUnavailable(err error) bool {
	_, ok := err.(renderUnavailableError)
	return ok
}
