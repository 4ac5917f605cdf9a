// Package email defines the message model shared by the sender, the parser and every transport.
package email

import (
	"time"
)

// PartKind identifies what a Part carries.
type PartKind int

const (
	// TextPart is a text/plain body part.
	TextPart PartKind = iota
	// AttachmentPart is a binary file attachment.
	AttachmentPart
)

// Content types used when rendering parts.
const (
	ContentTypeText       = "text/plain"
	ContentTypeAttachment = "application/octet-stream"
)

// Part is one entry of a multipart message, kept in the order it was added.
type Part struct {
	Kind        PartKind
	ContentType string

	// Text holds the content of a TextPart.
	Text string

	// Filename and Content describe an AttachmentPart. Filename is written verbatim
	// into the Content-Disposition header.
	Filename string
	Content  []byte
}

// Message accumulates the parts of an outgoing email together with flags recording which
// optional fields were set. It is not safe for concurrent use.
type Message struct {
	From      string
	To        string
	Subject   string
	Date      time.Time
	MessageID string

	parts []Part

	hasSubject    bool
	hasBody       bool
	hasSignature  bool
	hasAttachment bool
}

// New returns an empty message.
func New() *Message {
	return &Message{}
}

// SetSubject stores subject and marks it present. Empty input is ignored.
func (m *Message) SetSubject(subject string) {
	if subject == "" {
		return
	}
	m.Subject = subject
	m.hasSubject = true
}

// AddBody appends a text part holding body. Empty input is ignored.
func (m *Message) AddBody(body string) {
	if body == "" {
		return
	}
	m.parts = append(m.parts, Part{Kind: TextPart, ContentType: ContentTypeText, Text: body})
	m.hasBody = true
}

// AddSignature appends a text part holding signature. Empty input is ignored.
func (m *Message) AddSignature(signature string) {
	if signature == "" {
		return
	}
	m.parts = append(m.parts, Part{Kind: TextPart, ContentType: ContentTypeText, Text: signature})
	m.hasSignature = true
}

// AddAttachment appends a binary part. The content is base64-encoded when rendered.
func (m *Message) AddAttachment(filename string, content []byte) {
	m.parts = append(m.parts, Part{
		Kind:        AttachmentPart,
		ContentType: ContentTypeAttachment,
		Filename:    filename,
		Content:     content,
	})
	m.hasAttachment = true
}

// AddPart appends an already decoded part, typically one read back by a parser. The first
// text part counts as the body and later ones as the signature.
func (m *Message) AddPart(p Part) {
	switch p.Kind {
	case AttachmentPart:
		m.parts = append(m.parts, p)
		m.hasAttachment = true
	case TextPart:
		if p.ContentType == "" {
			p.ContentType = ContentTypeText
		}
		m.parts = append(m.parts, p)
		if m.hasBody {
			m.hasSignature = true
		} else {
			m.hasBody = true
		}
	}
}

// Parts returns the parts in insertion order. The slice must not be modified.
func (m *Message) Parts() []Part {
	return m.parts
}

// TextParts returns the text of every text part in order.
func (m *Message) TextParts() []string {
	var texts []string
	for _, p := range m.parts {
		if p.Kind == TextPart {
			texts = append(texts, p.Text)
		}
	}
	return texts
}

// Attachments returns every attachment part in order.
func (m *Message) Attachments() []Part {
	var atts []Part
	for _, p := range m.parts {
		if p.Kind == AttachmentPart {
			atts = append(atts, p)
		}
	}
	return atts
}

func (m *Message) HasSubject() bool    { return m.hasSubject }
func (m *Message) HasBody() bool       { return m.hasBody }
func (m *Message) HasSignature() bool  { return m.hasSignature }
func (m *Message) HasAttachment() bool { return m.hasAttachment }

// Validate checks the message is complete enough to send. A message carrying an attachment
// needs a subject, and a message needs at least one of subject, body or signature.
func (m *Message) Validate() error {
	if m.hasAttachment && !m.hasSubject {
		return ErrMissingSubject
	}
	if !m.hasSubject && !m.hasBody && !m.hasSignature {
		return ErrEmptyMessage
	}
	return nil
}
