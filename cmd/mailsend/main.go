// Package main is the entry point for the mailsend command.
package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/shineum/mailsend/internal/config"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		slog.Error("mailsend failed", "error", err)
		os.Exit(1)
	}
}

// application holds what the commands share once the Before hook has run.
type application struct {
	out io.Writer
	cfg *config.Config
}

func newApp(out io.Writer) *cli.App {
	a := &application{out: out}

	return &cli.App{
		Name:      "mailsend",
		Usage:     "compose a message and send it over SMTPS or a mail API",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML or TOML configuration file",
				EnvVars: []string{"MAILSEND_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "path to a .env file exported before reading the environment",
			},
		},
		Before: a.before,
		Commands: []*cli.Command{
			a.sendCommand(),
			a.sinkCommand(),
		},
	}
}

func (a *application) before(c *cli.Context) error {
	if path := c.String("env-file"); path != "" {
		if err := config.LoadEnvFile(path); err != nil {
			return err
		}
	}

	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}
	a.cfg = cfg

	slog.SetDefault(newLogger(a.out, cfg.Logging.Level, cfg.Logging.Format))
	return nil
}

// loadConfig loads configuration from the specified path (file + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// newLogger builds a JSON (default) or text logger at the given level.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
