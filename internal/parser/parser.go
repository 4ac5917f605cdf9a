// Package parser reads RFC 5322 messages with MIME multipart bodies back into email.Message values.
package parser

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"

	"github.com/shineum/mailsend/internal/email"
)

var headerDecoder = new(mime.WordDecoder)

// Parse parses a raw message. Text parts become body/signature parts in order, attachments keep
// their literal Content-Disposition filename and decoded bytes. Unrecognized parts are logged and
// skipped.
func Parse(raw []byte) (*email.Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	result := email.New()
	result.From = msg.Header.Get("From")
	result.To = msg.Header.Get("To")
	result.MessageID = msg.Header.Get("Message-Id")
	result.SetSubject(decodeHeader(msg.Header.Get("Subject")))
	if date, err := msg.Header.Date(); err == nil {
		result.Date = date
	}

	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		slog.Warn("failed to parse content type, treating as plain text",
			"content_type", contentType,
			"error", err,
		)
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("multipart message missing boundary")
		}
		if err := parseMultipart(msg.Body, boundary, result); err != nil {
			return nil, fmt.Errorf("failed to parse multipart message: %w", err)
		}
		return result, nil
	}

	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}
	body, err = decodeTransfer(msg.Header.Get("Content-Transfer-Encoding"), body)
	if err != nil {
		return nil, err
	}
	if len(body) > 0 {
		result.AddPart(email.Part{Kind: email.TextPart, ContentType: mediaType, Text: string(body)})
	}

	return result, nil
}

// parseMultipart walks a multipart body, descending into nested multiparts.
func parseMultipart(body io.Reader, boundary string, result *email.Message) error {
	reader := multipart.NewReader(body, boundary)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read next part: %w", err)
		}

		partContentType := part.Header.Get("Content-Type")
		if partContentType == "" {
			partContentType = "text/plain"
		}

		mediaType, params, err := mime.ParseMediaType(partContentType)
		if err != nil {
			slog.Warn("failed to parse part content type, skipping",
				"content_type", partContentType,
				"error", err,
			)
			continue
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			nestedBoundary := params["boundary"]
			if nestedBoundary == "" {
				slog.Warn("nested multipart missing boundary, skipping")
				continue
			}
			if err := parseMultipart(part, nestedBoundary, result); err != nil {
				slog.Warn("failed to parse nested multipart", "error", err)
			}
			continue
		}

		raw, err := io.ReadAll(part)
		if err != nil {
			slog.Warn("failed to read part content",
				"content_type", mediaType,
				"error", err,
			)
			continue
		}
		content, err := decodeTransfer(part.Header.Get("Content-Transfer-Encoding"), raw)
		if err != nil {
			slog.Warn("failed to decode part content",
				"content_type", mediaType,
				"error", err,
			)
			continue
		}

		filename := extractFilename(part.Header, params)
		disposition := part.Header.Get("Content-Disposition")

		switch {
		case strings.HasPrefix(disposition, "attachment") || filename != "":
			if filename == "" {
				filename = fallbackFilename(mediaType)
			}
			result.AddPart(email.Part{
				Kind:        email.AttachmentPart,
				ContentType: mediaType,
				Filename:    filename,
				Content:     content,
			})
		case strings.HasPrefix(mediaType, "text/"):
			result.AddPart(email.Part{
				Kind:        email.TextPart,
				ContentType: mediaType,
				Text:        string(content),
			})
		default:
			slog.Warn("unrecognized MIME part, skipping",
				"content_type", mediaType,
				"disposition", disposition,
			)
		}
	}

	return nil
}

// decodeTransfer undoes base64 transfer encoding. Quoted-printable is already decoded by the
// multipart reader, and 7bit/8bit/binary need nothing.
func decodeTransfer(encoding string, raw []byte) ([]byte, error) {
	if strings.ToLower(strings.TrimSpace(encoding)) != "base64" {
		return raw, nil
	}

	cleaned := strings.NewReplacer("\r", "", "\n", "").Replace(string(raw))
	decoded, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 content: %w", err)
		}
	}
	return decoded, nil
}

// extractFilename returns the literal filename parameter of Content-Disposition, falling back
// to the Content-Type name parameter. Directory components are preserved.
func extractFilename(header textproto.MIMEHeader, params map[string]string) string {
	if cd := header.Get("Content-Disposition"); cd != "" {
		if _, dispParams, err := mime.ParseMediaType(cd); err == nil {
			if fn := dispParams["filename"]; fn != "" {
				return fn
			}
		}
	}
	return params["name"]
}

func fallbackFilename(mediaType string) string {
	parts := strings.SplitN(mediaType, "/", 2)
	if len(parts) == 2 {
		return "attachment." + parts[1]
	}
	return "attachment"
}

func decodeHeader(value string) string {
	decoded, err := headerDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}
