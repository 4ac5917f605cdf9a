package main

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/shineum/mailsend/internal/smtpd"
	mtls "github.com/shineum/mailsend/internal/tls"
	"github.com/shineum/mailsend/internal/transport/stdout"
)

func (a *application) sinkCommand() *cli.Command {
	return &cli.Command{
		Name:  "sink",
		Usage: "run a local SMTPS server that prints every message it receives",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "address to listen on (overrides sink.listen)"},
		},
		Action: a.sink,
	}
}

func (a *application) sink(c *cli.Context) error {
	cfg := a.cfg.Sink
	if listen := c.String("listen"); listen != "" {
		cfg.Listen = listen
	}

	tlsConfig, err := mtls.ServerConfig(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return err
	}

	tlsMode := "self-signed"
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		tlsMode = "file"
	}

	server := smtpd.New(smtpd.ServerConfig{
		ListenAddr:     cfg.Listen,
		Hostname:       "localhost",
		Transport:      stdout.NewWithWriter(a.out),
		TLSConfig:      tlsConfig,
		AuthUsername:   cfg.Username,
		AuthPassword:   cfg.Password,
		MaxMessageSize: cfg.MaxMessageSize,
	})

	slog.Info("starting mailsend sink",
		"listen", cfg.Listen,
		"auth_enabled", a.cfg.SinkAuthEnabled(),
		"tls_mode", tlsMode,
	)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.ListenAndServe(ctx); err != nil {
		return err
	}

	slog.Info("mailsend sink stopped")
	return nil
}
