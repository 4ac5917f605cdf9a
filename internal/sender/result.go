package sender

// Result is the outcome of a Send that passed validation.
type Result struct {
	// Delivered is true when the transport accepted the message.
	Delivered bool

	// MessageID is the Message-ID header of the delivered message.
	MessageID string

	// Transport names the transport that handled the attempt.
	Transport string

	// Err holds the transport failure when Delivered is false.
	Err error
}

// OK reports whether the message was delivered.
func (r Result) OK() bool {
	return r.Delivered
}

// Flags records which optional message fields were set since the last reset.
type Flags struct {
	Subject    bool
	Body       bool
	Signature  bool
	Attachment bool
}
