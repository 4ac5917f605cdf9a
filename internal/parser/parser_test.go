package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/mailsend/internal/email"
)

func TestParsePlainTextEmail(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: recipient@example.com",
		"Subject: Test Subject",
		"Message-Id: <test123@example.com>",
		"Date: Mon, 02 Jan 2006 15:04:05 -0700",
		"Content-Type: text/plain",
		"",
		"Hello, this is a plain text email.",
	}, "\r\n"))

	msg, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "sender@example.com", msg.From)
	assert.Equal(t, "recipient@example.com", msg.To)
	assert.Equal(t, "Test Subject", msg.Subject)
	assert.True(t, msg.HasSubject())
	assert.Equal(t, "<test123@example.com>", msg.MessageID)
	assert.Equal(t, 2006, msg.Date.Year())
	assert.Equal(t, []string{"Hello, this is a plain text email."}, msg.TextParts())
	assert.True(t, msg.HasBody())
	assert.False(t, msg.HasAttachment())
}

func TestParseBodyAndSignatureParts(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: recipient@example.com",
		"Content-Type: multipart/mixed; boundary=b1",
		"",
		"--b1",
		"Content-Type: text/plain",
		"",
		"Body text",
		"--b1",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		"-- Signature",
		"--b1--",
	}, "\r\n"))

	msg, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, []string{"Body text", "-- Signature"}, msg.TextParts())
	assert.True(t, msg.HasBody())
	assert.True(t, msg.HasSignature())
	assert.False(t, msg.HasSubject())
}

func TestParseEmailWithAttachments(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: recipient@example.com",
		"Subject: With Attachment",
		"Content-Type: multipart/mixed; boundary=mixedboundary",
		"",
		"--mixedboundary",
		"Content-Type: text/plain",
		"",
		"Email body text",
		"--mixedboundary",
		"Content-Type: application/octet-stream",
		"Content-Disposition: attachment; filename=\"/var/log/report.txt\"",
		"Content-Transfer-Encoding: base64",
		"",
		"SGVsbG8gV29y",
		"bGQ=",
		"--mixedboundary--",
	}, "\r\n"))

	msg, err := Parse(raw)
	require.NoError(t, err)

	atts := msg.Attachments()
	require.Len(t, atts, 1)
	assert.Equal(t, "/var/log/report.txt", atts[0].Filename)
	assert.Equal(t, "application/octet-stream", atts[0].ContentType)
	assert.Equal(t, []byte("Hello World"), atts[0].Content)
	assert.True(t, msg.HasAttachment())
	assert.Equal(t, []string{"Email body text"}, msg.TextParts())
}

func TestParseAttachmentWithoutFilename(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: recipient@example.com",
		"Content-Type: multipart/mixed; boundary=b",
		"",
		"--b",
		"Content-Type: image/png",
		"Content-Disposition: attachment",
		"Content-Transfer-Encoding: base64",
		"",
		"iVBORw0KGgo=",
		"--b--",
	}, "\r\n"))

	msg, err := Parse(raw)
	require.NoError(t, err)

	atts := msg.Attachments()
	require.Len(t, atts, 1)
	assert.Equal(t, "attachment.png", atts[0].Filename)
}

func TestParseMultipartMissingBoundary(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"Content-Type: multipart/mixed",
		"",
		"body",
	}, "\r\n"))

	_, err := Parse(raw)
	assert.Error(t, err)
}

func TestParseNestedMultipart(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: recipient@example.com",
		"Content-Type: multipart/mixed; boundary=outer",
		"",
		"--outer",
		"Content-Type: multipart/alternative; boundary=inner",
		"",
		"--inner",
		"Content-Type: text/plain",
		"",
		"Nested text",
		"--inner--",
		"--outer--",
	}, "\r\n"))

	msg, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"Nested text"}, msg.TextParts())
}

func TestParseEncodedSubject(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"Subject: =?UTF-8?q?Gr=C3=BC=C3=9Fe?=",
		"",
		"hi",
	}, "\r\n"))

	msg, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Grüße", msg.Subject)
}

func TestParseRenderedMessageRoundTrip(t *testing.T) {
	t.Parallel()

	content := []byte{0x00, 0x01, 0xfe, 0xff, 'a', 'b', '\n', '\r'}

	out := email.New()
	out.From = "a@example.com"
	out.To = "b@example.com"
	out.Date = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	out.SetSubject("Report")
	out.AddBody("Hello")
	out.AddSignature("Regards")
	out.AddAttachment("data/report.bin", content)

	raw, err := out.Bytes()
	require.NoError(t, err)

	in, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "a@example.com", in.From)
	assert.Equal(t, "b@example.com", in.To)
	assert.Equal(t, "Report", in.Subject)
	assert.True(t, in.Date.Equal(out.Date))
	assert.Equal(t, []string{"Hello", "Regards"}, in.TextParts())

	atts := in.Attachments()
	require.Len(t, atts, 1)
	assert.Equal(t, "data/report.bin", atts[0].Filename)
	assert.Equal(t, content, atts[0].Content)
}
