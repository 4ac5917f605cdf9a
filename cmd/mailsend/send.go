package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/shineum/mailsend/internal/sender"
)

// errNotSent is returned when validation passed but the transport did not deliver.
var errNotSent = errors.New("message not sent")

func (a *application) sendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "build one message and send it",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "to", Usage: "recipient address", Required: true},
			&cli.StringFlag{Name: "subject", Usage: "message subject"},
			&cli.StringFlag{Name: "body", Usage: "body text"},
			&cli.StringFlag{Name: "body-file", Usage: "file whose contents are appended to the body"},
			&cli.StringFlag{Name: "signature", Usage: "signature text, sent as a separate part"},
			&cli.StringSliceFlag{Name: "attach", Usage: "file to attach (repeatable)"},
		},
		Action: a.send,
	}
}

func (a *application) send(c *cli.Context) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	tr, err := newTransport(c.Context, a.cfg, a.out)
	if err != nil {
		return err
	}

	body := c.String("body")
	if path := c.String("body-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read body file: %w", err)
		}
		body += string(data)
	}

	s := sender.New(sender.Config{
		Host:     a.cfg.SMTP.Host,
		Port:     a.cfg.SMTP.Port,
		Username: a.cfg.Sender(),
		Password: a.cfg.SMTP.Password,
	}, sender.WithTransport(tr))

	s.SetSubject(c.String("subject"))
	s.SetBody(body)
	s.SetSignature(c.String("signature"))
	for _, path := range c.StringSlice("attach") {
		if err := s.AddAttachment(path); err != nil {
			return err
		}
	}

	res, err := s.Send(c.Context, c.String("to"))
	if err != nil {
		return err
	}
	s.Reset()

	if !res.OK() {
		return fmt.Errorf("%w: %w", errNotSent, res.Err)
	}

	slog.Debug("send command finished", "message_id", res.MessageID)
	return nil
}
