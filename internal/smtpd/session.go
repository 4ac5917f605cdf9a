package smtpd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/shineum/mailsend/internal/parser"
	"github.com/shineum/mailsend/internal/transport"
)

// idleTimeout bounds how long the session waits for the next client line.
const idleTimeout = 60 * time.Second

// DefaultMaxMessageSize is the DATA limit used when none is configured (10 MB).
const DefaultMaxMessageSize = 10 * 1024 * 1024

// base64 of "Username:" and "Password:"
const (
	loginUserChallenge = "VXNlcm5hbWU6"
	loginPassChallenge = "UGFzc3dvcmQ6"
)

var errAuthCancelled = errors.New("authentication cancelled by client")

// SessionConfig carries the per-connection collaborators of a Session.
type SessionConfig struct {
	Auth           *Authenticator
	Transport      transport.Transport
	Hostname       string
	MaxMessageSize int
}

// Session serves one client connection. It is not safe for concurrent use.
type Session struct {
	conn net.Conn
	text *textproto.Conn
	cfg  SessionConfig

	greeted bool
	authed  bool

	// envelope of the open transaction
	from  string
	rcpts []string
}

// NewSession creates a Session for conn.
func NewSession(conn net.Conn, cfg SessionConfig) *Session {
	if cfg.Auth == nil {
		cfg.Auth = NewAuthenticator("", "")
	}
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}

	return &Session{
		conn: conn,
		text: textproto.NewConn(conn),
		cfg:  cfg,
	}
}

type commandFunc func(s *Session, ctx context.Context, arg string) (quit bool)

var commands = map[string]commandFunc{
	"EHLO": func(s *Session, _ context.Context, arg string) bool { s.hello(true, arg); return false },
	"HELO": func(s *Session, _ context.Context, arg string) bool { s.hello(false, arg); return false },
	"AUTH": func(s *Session, _ context.Context, arg string) bool { s.authenticate(arg); return false },
	"MAIL": func(s *Session, _ context.Context, arg string) bool { s.mail(arg); return false },
	"RCPT": func(s *Session, _ context.Context, arg string) bool { s.rcpt(arg); return false },
	"DATA": func(s *Session, ctx context.Context, _ string) bool { s.data(ctx); return false },
	"RSET": func(s *Session, _ context.Context, _ string) bool {
		s.abort()
		s.reply(250, "OK")
		return false
	},
	"NOOP": func(s *Session, _ context.Context, _ string) bool { s.reply(250, "OK"); return false },
	"QUIT": func(s *Session, _ context.Context, _ string) bool { s.reply(221, "Bye"); return true },
}

// Handle runs the session until the client quits, the connection fails or ctx is cancelled.
func (s *Session) Handle(ctx context.Context) {
	defer s.text.Close()

	// the deadline also covers the TLS handshake, which runs on the first write
	if !s.touch() {
		return
	}
	s.reply(220, fmt.Sprintf("%s ESMTP mailsend", s.cfg.Hostname))

	for {
		if ctx.Err() != nil {
			s.reply(421, "Service shutting down")
			return
		}
		if !s.touch() {
			return
		}

		line, err := s.text.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("connection read error", "remote", s.remote(), "error", err)
			}
			return
		}
		if line == "" {
			continue
		}

		verb, arg := parseCommand(line)
		fn, ok := commands[verb]
		if !ok {
			s.reply(500, "Unrecognized command")
			continue
		}
		if fn(s, ctx, arg) {
			return
		}
	}
}

func (s *Session) hello(extended bool, arg string) {
	if arg == "" {
		verb := "HELO"
		if extended {
			verb = "EHLO"
		}
		s.reply(501, fmt.Sprintf("Syntax: %s hostname", verb))
		return
	}

	s.abort()
	s.greeted = true

	banner := fmt.Sprintf("%s Hello %s", s.cfg.Hostname, arg)
	if !extended {
		s.reply(250, banner)
		return
	}

	lines := []string{banner}
	if s.cfg.Auth.Enabled() {
		lines = append(lines, "AUTH PLAIN LOGIN")
	}
	lines = append(lines, "8BITMIME", fmt.Sprintf("SIZE %d", s.cfg.MaxMessageSize), "OK")
	s.reply(250, lines...)
}

func (s *Session) authenticate(arg string) {
	switch {
	case !s.greeted:
		s.reply(503, "Send EHLO/HELO first")
		return
	case !s.cfg.Auth.Enabled():
		s.reply(503, "AUTH not available")
		return
	case s.authed:
		s.reply(503, "Already authenticated")
		return
	}

	mechanism, initial, _ := strings.Cut(arg, " ")

	var err error
	switch strings.ToUpper(mechanism) {
	case "PLAIN":
		err = s.authPlain(initial)
	case "LOGIN":
		err = s.authLogin()
	default:
		s.reply(504, "Unrecognized authentication type")
		return
	}

	switch {
	case errors.Is(err, errAuthCancelled):
		s.reply(501, "Authentication cancelled")
	case err != nil:
		slog.Warn("AUTH rejected",
			"mechanism", strings.ToUpper(mechanism),
			"remote", s.remote(),
			"error", err,
		)
		s.reply(535, "5.7.8 Authentication credentials invalid")
	default:
		s.authed = true
		s.reply(235, "2.7.0 Authentication successful")
	}
}

func (s *Session) authPlain(initial string) error {
	if initial == "" {
		var err error
		if initial, err = s.challenge(""); err != nil {
			return err
		}
	}
	return s.cfg.Auth.VerifyPlain(initial)
}

func (s *Session) authLogin() error {
	user, err := s.challenge(loginUserChallenge)
	if err != nil {
		return err
	}
	pass, err := s.challenge(loginPassChallenge)
	if err != nil {
		return err
	}
	return s.cfg.Auth.VerifyLogin(user, pass)
}

// challenge sends a 334 prompt and returns the client's answer.
func (s *Session) challenge(prompt string) (string, error) {
	s.reply(334, prompt)
	line, err := s.text.ReadLine()
	if err != nil {
		return "", fmt.Errorf("failed to read AUTH response: %w", err)
	}
	if line == "*" {
		return "", errAuthCancelled
	}
	return line, nil
}

func (s *Session) mail(arg string) {
	switch {
	case !s.greeted:
		s.reply(503, "Send EHLO/HELO first")
		return
	case s.cfg.Auth.Enabled() && !s.authed:
		s.reply(530, "5.7.0 Authentication required")
		return
	case s.from != "":
		s.reply(503, "Nested MAIL command")
		return
	}

	addr, ok := pathArg(arg, "FROM:")
	if !ok {
		s.reply(501, "Syntax: MAIL FROM:<address>")
		return
	}

	s.from = addr
	s.rcpts = nil
	s.reply(250, "OK")
}

func (s *Session) rcpt(arg string) {
	if s.from == "" {
		s.reply(503, "Send MAIL FROM first")
		return
	}

	addr, ok := pathArg(arg, "TO:")
	if !ok {
		s.reply(501, "Syntax: RCPT TO:<address>")
		return
	}

	s.rcpts = append(s.rcpts, addr)
	s.reply(250, "OK")
}

// data reads the payload, parses it and hands it to the transport. The envelope is cleared
// whatever the outcome.
func (s *Session) data(ctx context.Context) {
	if len(s.rcpts) == 0 {
		s.reply(503, "Send RCPT TO first")
		return
	}
	defer s.abort()

	s.reply(354, "Start mail input; end with <CRLF>.<CRLF>")

	raw, err := s.readData()
	if errors.Is(err, errMessageTooLarge) {
		s.reply(552, fmt.Sprintf("5.3.4 Message exceeds %d bytes", s.cfg.MaxMessageSize))
		return
	}
	if err != nil {
		slog.Error("error reading DATA", "remote", s.remote(), "error", err)
		return
	}

	msg, err := parser.Parse(raw)
	if err != nil {
		slog.Error("failed to parse message", "error", err)
		s.reply(550, "Failed to process message")
		return
	}
	if msg.From == "" {
		msg.From = s.from
	}
	if msg.To == "" {
		msg.To = strings.Join(s.rcpts, ", ")
	}

	name := s.cfg.Transport.Name()
	if err := s.cfg.Transport.Send(ctx, msg); err != nil {
		slog.Error("transport send failed", "transport", name, "error", err)
		s.reply(451, "Temporary failure, please try again later")
		return
	}

	slog.Info("message accepted",
		"from", s.from,
		"recipients", len(s.rcpts),
		"size", len(raw),
		"transport", name,
	)
	s.reply(250, "OK message queued")
}

var errMessageTooLarge = errors.New("message too large")

// readData consumes the dot-terminated payload and returns it with CRLF line endings.
// Oversized payloads are drained so the session stays in sync.
func (s *Session) readData() ([]byte, error) {
	dot := s.text.DotReader()

	body, err := io.ReadAll(io.LimitReader(dot, int64(s.cfg.MaxMessageSize)+1))
	if err != nil {
		return nil, err
	}
	if len(body) > s.cfg.MaxMessageSize {
		if _, err := io.Copy(io.Discard, dot); err != nil {
			return nil, err
		}
		return nil, errMessageTooLarge
	}

	return bytes.ReplaceAll(body, []byte("\n"), []byte("\r\n")), nil
}

// abort drops the open transaction. Greeting and auth state survive.
func (s *Session) abort() {
	s.from = ""
	s.rcpts = nil
}

// reply writes a possibly multi-line response. Write errors surface on the next read.
func (s *Session) reply(code int, lines ...string) {
	if len(lines) == 0 {
		lines = []string{""}
	}
	for i, line := range lines {
		sep := "-"
		if i == len(lines)-1 {
			sep = " "
		}
		if err := s.text.PrintfLine("%d%s%s", code, sep, line); err != nil {
			slog.Debug("failed to write to client", "remote", s.remote(), "error", err)
			return
		}
	}
}

// touch pushes the connection deadline forward.
func (s *Session) touch() bool {
	if err := s.conn.SetDeadline(time.Now().Add(idleTimeout)); err != nil {
		slog.Error("failed to set connection deadline", "error", err)
		return false
	}
	return true
}

func (s *Session) remote() string {
	return s.conn.RemoteAddr().String()
}

// parseCommand splits an SMTP command line into the upper-cased verb and its argument.
func parseCommand(line string) (string, string) {
	verb, arg, _ := strings.Cut(line, " ")
	return strings.ToUpper(verb), arg
}

// pathArg strips a case-insensitive keyword such as "FROM:" and returns the address.
func pathArg(arg, keyword string) (string, bool) {
	if len(arg) < len(keyword) || !strings.EqualFold(arg[:len(keyword)], keyword) {
		return "", false
	}
	addr := extractAddress(arg[len(keyword):])
	return addr, addr != ""
}

// extractAddress returns the mailbox from "<addr>" or a bare "addr", dropping any ESMTP
// parameters that follow it.
func extractAddress(s string) string {
	s = strings.TrimSpace(s)

	if rest, ok := strings.CutPrefix(s, "<"); ok {
		addr, _, closed := strings.Cut(rest, ">")
		if !closed {
			return ""
		}
		return addr
	}

	addr, _, _ := strings.Cut(s, " ")
	return addr
}
