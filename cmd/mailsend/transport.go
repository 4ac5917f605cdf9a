package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/shineum/mailsend/internal/config"
	mtls "github.com/shineum/mailsend/internal/tls"
	"github.com/shineum/mailsend/internal/transport"
	"github.com/shineum/mailsend/internal/transport/graph"
	"github.com/shineum/mailsend/internal/transport/resend"
	"github.com/shineum/mailsend/internal/transport/ses"
	"github.com/shineum/mailsend/internal/transport/smtps"
	"github.com/shineum/mailsend/internal/transport/stdout"
)

// newTransport builds the transport selected by cfg.Transport. cfg must already be valid.
func newTransport(ctx context.Context, cfg *config.Config, out io.Writer) (transport.Transport, error) {
	switch cfg.Transport {
	case config.TransportSMTPS:
		tlsConfig, err := mtls.ClientConfig(mtls.ClientOptions{
			ServerName:         cfg.SMTP.TLS.ServerName,
			CAFile:             cfg.SMTP.TLS.CAFile,
			InsecureSkipVerify: cfg.SMTP.TLS.InsecureSkipVerify,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set up TLS: %w", err)
		}
		if cfg.SMTP.TLS.InsecureSkipVerify {
			slog.Warn("SMTPS certificate verification is disabled")
		}
		slog.Debug("using SMTPS transport", "host", cfg.SMTP.Host, "port", cfg.SMTP.Port)
		return smtps.New(smtps.Config{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			Timeout:   cfg.SMTP.Timeout,
			TLSConfig: tlsConfig,
		}), nil

	case config.TransportSES:
		slog.Debug("using AWS SES transport", "region", cfg.SES.Region)
		t, err := ses.New(ctx, ses.Config{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
			Sender:          cfg.SES.Sender,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SES transport: %w", err)
		}
		return t, nil

	case config.TransportGraph:
		slog.Debug("using Microsoft Graph transport", "sender", cfg.Graph.Sender)
		return graph.New(graph.Config{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			Sender:       cfg.Graph.Sender,
		}), nil

	case config.TransportResend:
		slog.Debug("using Resend transport")
		return resend.New(cfg.Resend.APIKey, cfg.Resend.Sender), nil

	case config.TransportStdout:
		return stdout.NewWithWriter(out), nil

	default:
		return nil, fmt.Errorf("%w: unknown transport %q", config.ErrInvalidConfig, cfg.Transport)
	}
}
