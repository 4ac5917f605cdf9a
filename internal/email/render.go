package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
)

// base64LineLength is the RFC 2045 maximum encoded line length.
const base64LineLength = 76

// Render writes the message as a multipart/mixed RFC 5322 document. From and To must be set.
// A zero Date is replaced with the current local time and an empty MessageID is generated.
func (m *Message) Render(w io.Writer) error {
	if m.From == "" {
		return ErrNoSender
	}
	if m.To == "" {
		return ErrNoRecipient
	}

	date := m.Date
	if date.IsZero() {
		date = time.Now()
	}
	messageID := m.MessageID
	if messageID == "" {
		messageID = NewMessageID(m.From)
	}

	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", m.From)
	fmt.Fprintf(&buf, "To: %s\r\n", m.To)
	if m.Subject != "" {
		fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", m.Subject))
	}
	fmt.Fprintf(&buf, "Date: %s\r\n", date.Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")

	writer := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", writer.Boundary())

	for i, p := range m.parts {
		var err error
		switch p.Kind {
		case TextPart:
			err = writeTextPart(writer, p)
		case AttachmentPart:
			err = writeAttachmentPart(writer, p)
		default:
			err = fmt.Errorf("unknown part kind %d", p.Kind)
		}
		if err != nil {
			return fmt.Errorf("failed to write part %d: %w", i, err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// Bytes renders the message into memory.
func (m *Message) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := m.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NewMessageID returns a unique Message-ID using the domain part of from.
func NewMessageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = strings.TrimRight(from[at+1:], ">")
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

func writeTextPart(writer *multipart.Writer, p Part) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Type", p.ContentType+"; charset=UTF-8")
	header.Set("Content-Transfer-Encoding", "quoted-printable")

	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create text part: %w", err)
	}

	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(p.Text)); err != nil {
		return fmt.Errorf("failed to encode text part: %w", err)
	}
	return qp.Close()
}

func writeAttachmentPart(writer *multipart.Writer, p Part) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Type", p.ContentType)
	header.Set("Content-Transfer-Encoding", "base64")
	header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", p.Filename))

	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create attachment part: %w", err)
	}

	_, err = part.Write([]byte(EncodeBase64Lines(p.Content)))
	return err
}

// EncodeBase64Lines encodes data to base64 broken into 76-character CRLF-separated lines.
func EncodeBase64Lines(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var lines []string
	for i := 0; i < len(encoded); i += base64LineLength {
		end := i + base64LineLength
		if end > len(encoded) {
			end = len(encoded)
		}
		lines = append(lines, encoded[i:end])
	}
	return strings.Join(lines, "\r\n")
}
