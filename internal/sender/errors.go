package sender

import (
	"errors"

	"github.com/shineum/mailsend/internal/email"
)

var (
	// ErrNotFound is returned by AddAttachment when the path does not exist.
	ErrNotFound = errors.New("attachment not found")

	// ErrInvalidInput is returned by AddAttachment when the path is not a regular file.
	ErrInvalidInput = errors.New("attachment is not a regular file")
)

// Validation errors returned by Send before any delivery is attempted.
var (
	ErrValidation     = email.ErrValidation
	ErrMissingSubject = email.ErrMissingSubject
	ErrEmptyMessage   = email.ErrEmptyMessage
)
