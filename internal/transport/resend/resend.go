// Package resend implements a Transport backed by the Resend HTTP API.
package resend

import (
	"context"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v3"

	"github.com/shineum/mailsend/internal/email"
)

// EmailsAPI is the subset of the Resend client used by Transport.
type EmailsAPI interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Transport sends messages through Resend.
type Transport struct {
	emails EmailsAPI
	sender string
}

// New creates a Transport authenticated with apiKey. A non-empty sender replaces the message From.
func New(apiKey, sender string) *Transport {
	return NewWithClient(resend.NewClient(apiKey).Emails, sender)
}

// NewWithClient creates a Transport with a custom emails client.
func NewWithClient(emails EmailsAPI, sender string) *Transport {
	return &Transport{emails: emails, sender: sender}
}

// Send submits msg. Resend has no notion of ordered text parts, so body and signature are
// joined with a blank line into the plain text body.
func (t *Transport) Send(ctx context.Context, msg *email.Message) error {
	from := msg.From
	if t.sender != "" {
		from = t.sender
	}
	if from == "" {
		return email.ErrNoSender
	}
	if msg.To == "" {
		return email.ErrNoRecipient
	}

	req := &resend.SendEmailRequest{
		From:    from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    strings.Join(msg.TextParts(), "\n\n"),
	}
	if atts := msg.Attachments(); len(atts) > 0 {
		req.Attachments = convertAttachments(atts)
	}

	resp, err := t.emails.SendWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("resend: failed to send email: %w", err)
	}
	if resp != nil && resp.Id != "" && msg.MessageID == "" {
		msg.MessageID = resp.Id
	}

	return nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "resend"
}

func convertAttachments(parts []email.Part) []*resend.Attachment {
	result := make([]*resend.Attachment, len(parts))
	for i, p := range parts {
		result[i] = &resend.Attachment{
			Filename:    p.Filename,
			Content:     p.Content,
			ContentType: p.ContentType,
		}
	}
	return result
}
