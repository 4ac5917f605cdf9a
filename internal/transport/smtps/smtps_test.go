package smtps

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/mailsend/internal/email"
	"github.com/shineum/mailsend/internal/smtpd"
	mtls "github.com/shineum/mailsend/internal/tls"
	"github.com/shineum/mailsend/internal/transport"
)

var _ transport.Transport = (*Transport)(nil)

type recorder struct {
	mu       sync.Mutex
	messages []*email.Message
}

func (r *recorder) Send(_ context.Context, msg *email.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) received() []*email.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*email.Message(nil), r.messages...)
}

type sink struct {
	host      string
	port      int
	clientTLS *tls.Config
	recorder  *recorder
}

// startSink runs an implicit-TLS sink on loopback requiring the given credentials.
func startSink(t *testing.T, username, password string) *sink {
	t.Helper()

	cert, err := mtls.GenerateSelfSignedCert()
	require.NoError(t, err)
	pool, err := mtls.CertPool(cert.CertPEM)
	require.NoError(t, err)

	rec := &recorder{}
	srv := smtpd.New(smtpd.ServerConfig{
		ListenAddr:   "127.0.0.1:0",
		Transport:    rec,
		AuthUsername: username,
		AuthPassword: password,
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{cert.Certificate},
			MinVersion:   tls.VersionTLS12,
		},
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

	return &sink{
		host:      host,
		port:      port,
		clientTLS: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
		recorder:  rec,
	}
}

func (s *sink) transport(username, password string) *Transport {
	return New(Config{
		Host:      s.host,
		Port:      s.port,
		Username:  username,
		Password:  password,
		Timeout:   5 * time.Second,
		TLSConfig: s.clientTLS,
	})
}

func newMessage() *email.Message {
	msg := email.New()
	msg.From = "a@example.com"
	msg.To = "b@example.com"
	msg.SetSubject("Hi")
	msg.AddBody("Hello")
	return msg
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	tr := New(Config{Host: "smtp.example.com", Port: 465})
	assert.Equal(t, "smtps", tr.Name())
	assert.Equal(t, "smtp.example.com:465", tr.Addr())
	assert.Equal(t, defaultTimeout, tr.cfg.Timeout)
}

func TestSend_Delivers(t *testing.T) {
	t.Parallel()

	s := startSink(t, "a@example.com", "x")

	msg := newMessage()
	msg.AddSignature("-- A")
	msg.AddAttachment("notes.txt", []byte("line one\nline two\n"))

	require.NoError(t, s.transport("a@example.com", "x").Send(context.Background(), msg))

	received := s.recorder.received()
	require.Len(t, received, 1)
	got := received[0]
	assert.Equal(t, "a@example.com", got.From)
	assert.Equal(t, "b@example.com", got.To)
	assert.Equal(t, "Hi", got.Subject)
	assert.Equal(t, []string{"Hello", "-- A"}, got.TextParts())

	atts := got.Attachments()
	require.Len(t, atts, 1)
	assert.Equal(t, "notes.txt", atts[0].Filename)
	assert.Equal(t, []byte("line one\nline two\n"), atts[0].Content)
}

func TestSend_WrongPassword(t *testing.T) {
	t.Parallel()

	s := startSink(t, "a@example.com", "x")

	err := s.transport("a@example.com", "wrong").Send(context.Background(), newMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication failed")
	assert.Equal(t, 535, ReplyCode(err))
	assert.Empty(t, s.recorder.received())
}

func TestSend_MissingCredentials(t *testing.T) {
	t.Parallel()

	s := startSink(t, "a@example.com", "x")

	err := s.transport("", "").Send(context.Background(), newMessage())
	require.Error(t, err)
	assert.Equal(t, 530, ReplyCode(err))
}

func TestSend_UntrustedCertificate(t *testing.T) {
	t.Parallel()

	s := startSink(t, "a@example.com", "x")
	tr := New(Config{Host: s.host, Port: s.port, Username: "a@example.com", Password: "x", Timeout: 5 * time.Second})

	err := tr.Send(context.Background(), newMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect")
	assert.Zero(t, ReplyCode(err))
}

func TestSend_ConnectionRefused(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	tr := New(Config{Host: "127.0.0.1", Port: port, Timeout: 2 * time.Second})

	err = tr.Send(context.Background(), newMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect")
}

func TestSend_RenderError(t *testing.T) {
	t.Parallel()

	msg := email.New()
	msg.SetSubject("no addresses")

	err := New(Config{Host: "127.0.0.1", Port: 1}).Send(context.Background(), msg)
	assert.ErrorIs(t, err, email.ErrNoSender)
}

func TestReplyCode_NonSMTPError(t *testing.T) {
	t.Parallel()
	assert.Zero(t, ReplyCode(context.DeadlineExceeded))
	assert.Zero(t, ReplyCode(nil))
}
