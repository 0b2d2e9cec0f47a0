package domain

import "errors"

// Input errors.
var (
	ErrNoDocuments       = errors.New("no documents uploaded")
	ErrNoText            = errors.New("no extractable text in uploaded documents")
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrEmptyQuestion     = errors.New("empty question")
)

// Configuration errors.
var (
	ErrMissingCredential  = errors.New("missing credential")
	ErrInvalidChunkConfig = errors.New("invalid chunker configuration")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// ErrNotInitialized is returned when a question is asked before any
// document set has been processed.
var ErrNotInitialized = errors.New("no documents processed yet")

// IsInputError reports whether err is caused by user input or session state
// rather than configuration or a remote collaborator.
func IsInputError(err error) bool {
	return errors.Is(err, ErrNoDocuments) ||
		errors.Is(err, ErrNoText) ||
		errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrEmptyQuestion) ||
		errors.Is(err, ErrNotInitialized)
}
