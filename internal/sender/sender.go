// Package sender composes one message at a time and delivers it to a single recipient.
package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/shineum/mailsend/internal/email"
	"github.com/shineum/mailsend/internal/transport"
	"github.com/shineum/mailsend/internal/transport/smtps"
)

// Config holds the SMTPS server address and the account used as sender and login.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// Timeout and TLSConfig tune the default SMTPS transport and are ignored when a
	// transport is supplied with WithTransport.
	Timeout   time.Duration
	TLSConfig *tls.Config
}

// Option customizes a Sender.
type Option func(*Sender)

// WithTransport replaces the default SMTPS transport.
func WithTransport(t transport.Transport) Option {
	return func(s *Sender) {
		s.transport = t
	}
}

// WithLogger sets the logger used to report delivery outcomes.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sender) {
		s.logger = logger
	}
}

// WithClock sets the function used to stamp the Date header.
func WithClock(now func() time.Time) Option {
	return func(s *Sender) {
		s.now = now
	}
}

// Sender accumulates a message and sends it. It is meant for sequential use by one caller.
type Sender struct {
	cfg       Config
	transport transport.Transport
	logger    *slog.Logger
	now       func() time.Time
	msg       *email.Message
}

// New creates a Sender. The configuration is not validated; a bad host or credentials only
// surface as a failed Result from Send.
func New(cfg Config, opts ...Option) *Sender {
	s := &Sender{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.transport == nil {
		s.transport = smtps.New(smtps.Config{
			Host:      cfg.Host,
			Port:      cfg.Port,
			Username:  cfg.Username,
			Password:  cfg.Password,
			Timeout:   cfg.Timeout,
			TLSConfig: cfg.TLSConfig,
		})
	}
	s.Reset()
	return s
}

// SetSubject sets the subject. Empty text is ignored; a later call replaces an earlier one.
func (s *Sender) SetSubject(text string) {
	s.msg.SetSubject(text)
}

// SetBody appends a plain text body part. Empty text is ignored.
func (s *Sender) SetBody(text string) {
	s.msg.AddBody(text)
}

// SetSignature appends a plain text signature part after whatever was added before it.
// Empty text is ignored.
func (s *Sender) SetSignature(text string) {
	s.msg.AddSignature(text)
}

// AddAttachment reads the file at path and attaches it. The path itself, directories
// included, becomes the attachment filename.
func (s *Sender) AddAttachment(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("failed to stat attachment %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrInvalidInput, path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read attachment %s: %w", path, err)
	}

	s.msg.AddAttachment(path, content)
	return nil
}

// Send validates the message, stamps the envelope and hands it to the transport.
//
// Validation problems are returned as errors wrapping ErrValidation and nothing is sent.
// Delivery problems are logged and reported through the Result only, so callers must check
// Result.OK even when err is nil.
func (s *Sender) Send(ctx context.Context, recipient string) (Result, error) {
	if err := s.msg.Validate(); err != nil {
		return Result{}, err
	}

	s.msg.From = s.cfg.Username
	s.msg.To = recipient
	s.msg.Date = s.now()
	s.msg.MessageID = email.NewMessageID(s.msg.From)

	if err := s.transport.Send(ctx, s.msg); err != nil {
		s.logger.Error("couldn't send email, please check your email credentials",
			"transport", s.transport.Name(),
			"recipient", recipient,
			"error", err,
		)
		return Result{Transport: s.transport.Name(), Err: err}, nil
	}

	s.logger.Info("message sent",
		"transport", s.transport.Name(),
		"recipient", recipient,
		"message_id", s.msg.MessageID,
	)
	return Result{
		Delivered: true,
		MessageID: s.msg.MessageID,
		Transport: s.transport.Name(),
	}, nil
}

// Reset discards the current message and starts an empty one from the configured username.
func (s *Sender) Reset() {
	s.msg = email.New()
	s.msg.From = s.cfg.Username
}

// Flags reports which optional fields of the current message have been set.
func (s *Sender) Flags() Flags {
	return Flags{
		Subject:    s.msg.HasSubject(),
		Body:       s.msg.HasBody(),
		Signature:  s.msg.HasSignature(),
		Attachment: s.msg.HasAttachment(),
	}
}

// Message returns the message being built. It is replaced by Reset.
func (s *Sender) Message() *email.Message {
	return s.msg
}
