package email

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the parent of every send-time completeness failure.
	ErrValidation = errors.New("invalid message")

	// ErrMissingSubject indicates an attachment was added without a subject.
	ErrMissingSubject = fmt.Errorf("%w: missing subject", ErrValidation)

	// ErrEmptyMessage indicates none of subject, body or signature was set.
	ErrEmptyMessage = fmt.Errorf("%w: empty message", ErrValidation)

	// ErrNoSender indicates the From address is not set.
	ErrNoSender = errors.New("no sender address set")

	// ErrNoRecipient indicates the To address is not set.
	ErrNoRecipient = errors.New("no recipient address set")
)
