package sender

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/mailsend/internal/email"
	"github.com/shineum/mailsend/internal/parser"
	"github.com/shineum/mailsend/internal/smtpd"
	mtls "github.com/shineum/mailsend/internal/tls"
	"github.com/shineum/mailsend/internal/transport/smtps"
)

// stubTransport records every message it is handed and fails with err when set.
type stubTransport struct {
	err error

	mu       sync.Mutex
	messages []*email.Message
}

func (s *stubTransport) Send(_ context.Context, msg *email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return s.err
}

func (s *stubTransport) sent() []*email.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*email.Message(nil), s.messages...)
}

func (s *stubTransport) Name() string { return "stub" }

var testConfig = Config{Host: "smtp.example.com", Port: 465, Username: "a@example.com", Password: "x"}

var fixedTime = time.Date(2024, 3, 9, 14, 30, 0, 0, time.Local)

func newTestSender(t *testing.T, tr *stubTransport) (*Sender, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	s := New(testConfig,
		WithTransport(tr),
		WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))),
		WithClock(func() time.Time { return fixedTime }),
	)
	return s, &logs
}

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func TestNew_DefaultsToSMTPS(t *testing.T) {
	s := New(testConfig)
	assert.Equal(t, "smtps", s.transport.Name())
	assert.Equal(t, "a@example.com", s.Message().From)
	assert.Equal(t, Flags{}, s.Flags())
}

func TestSetters_IgnoreEmptyInput(t *testing.T) {
	s, _ := newTestSender(t, &stubTransport{})

	s.SetSubject("")
	s.SetBody("")
	s.SetSignature("")

	assert.Equal(t, Flags{}, s.Flags())
	assert.Empty(t, s.Message().Subject)
	assert.Empty(t, s.Message().Parts())
}

func TestSetters_SetFlagsAndParts(t *testing.T) {
	s, _ := newTestSender(t, &stubTransport{})

	s.SetSubject("First")
	s.SetSubject("Second")
	s.SetBody("Hello")
	s.SetSignature("-- A")

	assert.Equal(t, Flags{Subject: true, Body: true, Signature: true}, s.Flags())
	assert.Equal(t, "Second", s.Message().Subject)
	assert.Equal(t, []string{"Hello", "-- A"}, s.Message().TextParts())
}

func TestAddAttachment_NotFound(t *testing.T) {
	s, _ := newTestSender(t, &stubTransport{})

	err := s.AddAttachment(filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, s.Flags().Attachment)
}

func TestAddAttachment_Directory(t *testing.T) {
	s, _ := newTestSender(t, &stubTransport{})

	err := s.AddAttachment(t.TempDir())
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.False(t, s.Flags().Attachment)
	assert.Empty(t, s.Message().Attachments())
}

func TestAddAttachment_RoundTrip(t *testing.T) {
	tr := &stubTransport{}
	s, _ := newTestSender(t, tr)

	content := make([]byte, 1000)
	for i := range content {
		content[i] = byte(i * 7)
	}
	path := writeFile(t, "blob.bin", content)

	require.NoError(t, s.AddAttachment(path))
	assert.True(t, s.Flags().Attachment)

	s.SetSubject("With file")
	res, err := s.Send(context.Background(), "b@example.com")
	require.NoError(t, err)
	require.True(t, res.OK())

	raw, err := tr.sent()[0].Bytes()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `Content-Disposition: attachment; filename="`+path+`"`)
	assert.Contains(t, string(raw), "Content-Type: application/octet-stream")
	assert.Contains(t, string(raw), "Content-Transfer-Encoding: base64")

	parsed, err := parser.Parse(raw)
	require.NoError(t, err)
	atts := parsed.Attachments()
	require.Len(t, atts, 1)
	assert.Equal(t, path, atts[0].Filename)
	assert.Equal(t, content, atts[0].Content)
}

func TestSend_AttachmentWithoutSubject(t *testing.T) {
	tr := &stubTransport{}
	s, _ := newTestSender(t, tr)

	s.SetBody("body")
	require.NoError(t, s.AddAttachment(writeFile(t, "a.txt", []byte("a"))))

	res, err := s.Send(context.Background(), "b@example.com")
	assert.ErrorIs(t, err, ErrMissingSubject)
	assert.ErrorIs(t, err, ErrValidation)
	assert.False(t, res.OK())
	assert.Empty(t, tr.sent())
}

func TestSend_EmptyMessage(t *testing.T) {
	tr := &stubTransport{}
	s, _ := newTestSender(t, tr)

	s.SetSubject("")
	res, err := s.Send(context.Background(), "b@example.com")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.ErrorIs(t, err, ErrValidation)
	assert.False(t, res.OK())
	assert.Empty(t, tr.sent())
}

func TestSend_Scenario(t *testing.T) {
	tr := &stubTransport{}
	s, logs := newTestSender(t, tr)

	s.SetSubject("Hi")
	s.SetBody("Hello")

	res, err := s.Send(context.Background(), "b@example.com")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "stub", res.Transport)
	assert.NotEmpty(t, res.MessageID)
	assert.NoError(t, res.Err)

	require.Len(t, tr.sent(), 1)
	msg := tr.sent()[0]
	assert.Equal(t, "a@example.com", msg.From)
	assert.Equal(t, "b@example.com", msg.To)
	assert.Equal(t, "Hi", msg.Subject)
	assert.Equal(t, []string{"Hello"}, msg.TextParts())
	assert.Equal(t, fixedTime, msg.Date)
	assert.Equal(t, res.MessageID, msg.MessageID)
	assert.Contains(t, logs.String(), "message sent")
}

func TestSend_TransportFailureIsReportedNotReturned(t *testing.T) {
	cause := errors.New("535 authentication rejected")
	s, logs := newTestSender(t, &stubTransport{err: cause})

	s.SetSubject("Hi")

	res, err := s.Send(context.Background(), "b@example.com")
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.ErrorIs(t, res.Err, cause)
	assert.Contains(t, logs.String(), "couldn't send email, please check your email credentials")
	assert.Contains(t, logs.String(), "535 authentication rejected")
}

func TestReset(t *testing.T) {
	tr := &stubTransport{}
	s, _ := newTestSender(t, tr)

	s.SetSubject("Old subject")
	s.SetBody("Old body")
	s.SetSignature("Old signature")
	require.NoError(t, s.AddAttachment(writeFile(t, "old.txt", []byte("old"))))
	_, err := s.Send(context.Background(), "b@example.com")
	require.NoError(t, err)

	s.Reset()

	assert.Equal(t, Flags{}, s.Flags())
	assert.Equal(t, "a@example.com", s.Message().From)
	assert.Empty(t, s.Message().To)
	assert.Empty(t, s.Message().Parts())

	s.SetBody("New body")
	res, err := s.Send(context.Background(), "c@example.com")
	require.NoError(t, err)
	require.True(t, res.OK())

	require.Len(t, tr.sent(), 2)
	next := tr.sent()[1]
	assert.Empty(t, next.Subject)
	assert.Equal(t, []string{"New body"}, next.TextParts())
	assert.Empty(t, next.Attachments())
	assert.Equal(t, "c@example.com", next.To)
}

// startSink runs an implicit-TLS sink on loopback and returns a Config pointing at it.
func startSink(t *testing.T, password string) (Config, *stubTransport) {
	t.Helper()

	cert, err := mtls.GenerateSelfSignedCert()
	require.NoError(t, err)
	pool, err := mtls.CertPool(cert.CertPEM)
	require.NoError(t, err)

	received := &stubTransport{}
	srv := smtpd.New(smtpd.ServerConfig{
		ListenAddr:   "127.0.0.1:0",
		Transport:    received,
		AuthUsername: "a@example.com",
		AuthPassword: "x",
		TLSConfig:    &tls.Config{Certificates: []tls.Certificate{cert.Certificate}, MinVersion: tls.VersionTLS12},
	})
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	host, portStr, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return Config{
		Host:      host,
		Port:      port,
		Username:  "a@example.com",
		Password:  password,
		Timeout:   5 * time.Second,
		TLSConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
	}, received
}

func TestSend_EndToEnd(t *testing.T) {
	cfg, received := startSink(t, "x")
	s := New(cfg, WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))

	s.SetSubject("Hi")
	s.SetBody("Hello")
	s.SetSignature("Regards")

	res, err := s.Send(context.Background(), "b@example.com")
	require.NoError(t, err)
	require.True(t, res.OK(), "send failed: %v", res.Err)

	// the sink reports 250 only after its transport returned
	require.Len(t, received.sent(), 1)
	got := received.sent()[0]
	assert.Equal(t, "a@example.com", got.From)
	assert.Equal(t, "b@example.com", got.To)
	assert.Equal(t, "Hi", got.Subject)
	assert.Equal(t, []string{"Hello", "Regards"}, got.TextParts())
	assert.Equal(t, res.MessageID, got.MessageID)
}

func TestSend_EndToEndAuthRejected(t *testing.T) {
	cfg, received := startSink(t, "wrong")
	var logs bytes.Buffer
	s := New(cfg, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	s.SetSubject("Hi")

	res, err := s.Send(context.Background(), "b@example.com")
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, "smtps", res.Transport)
	assert.Equal(t, 535, smtps.ReplyCode(res.Err))
	assert.True(t, strings.Contains(logs.String(), "couldn't send email"))
	assert.Empty(t, received.sent())
}
