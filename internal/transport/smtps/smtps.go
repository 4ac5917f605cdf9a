// Package smtps implements a Transport that submits mail over an implicit TLS SMTP session
// (SMTPS, usually port 465) authenticated with AUTH PLAIN.
package smtps

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/shineum/mailsend/internal/email"
)

// defaultTimeout bounds a whole session when Config.Timeout is zero.
const defaultTimeout = 30 * time.Second

// Config holds the server address and credentials of an SMTPS transport.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// Timeout bounds dialing, the TLS handshake and the whole SMTP dialogue.
	Timeout time.Duration

	// TLSConfig is used for the handshake. ServerName defaults to Host when empty.
	TLSConfig *tls.Config
}

// Transport sends messages through an SMTPS server. Each Send opens and closes its own session.
type Transport struct {
	cfg Config
}

// New creates a Transport with the given configuration.
func New(cfg Config) *Transport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Transport{cfg: cfg}
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "smtps"
}

// Addr returns the host:port the transport dials.
func (t *Transport) Addr() string {
	return net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
}

// Send renders msg and delivers it to msg.To. Authentication is skipped when no username is
// configured.
func (t *Transport) Send(ctx context.Context, msg *email.Message) error {
	raw, err := msg.Bytes()
	if err != nil {
		return fmt.Errorf("failed to render message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}

	client := smtp.NewClient(conn)
	defer client.Close()

	if t.cfg.Username != "" {
		auth := sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	if err := client.SendMail(msg.From, []string{msg.To}, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	if err := client.Quit(); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}

// dial opens the TLS connection and applies the context deadline to it, since the SMTP client
// itself is not context aware.
func (t *Transport) dial(ctx context.Context) (net.Conn, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if t.cfg.TLSConfig != nil {
		tlsConfig = t.cfg.TLSConfig.Clone()
	}
	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = t.cfg.Host
	}

	dialer := &tls.Dialer{Config: tlsConfig}
	conn, err := dialer.DialContext(ctx, "tcp", t.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", t.Addr(), err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set connection deadline: %w", err)
		}
	}
	return conn, nil
}

// ReplyCode extracts the SMTP reply code from an error returned by Send, or 0 if the failure
// happened below the SMTP layer.
func ReplyCode(err error) int {
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return smtpErr.Code
	}
	return 0
}
