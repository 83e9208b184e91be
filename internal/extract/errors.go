package extract

import "errors"

var (
	// ErrEmptyDocument is returned when extraction produced no text.
	ErrEmptyDocument = errors.New("document is empty after extraction")
	// ErrUnsupportedType is returned when no converter handles the file type.
	ErrUnsupportedType = errors.New("unsupported document type")
)
