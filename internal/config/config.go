// Package config loads mailsend configuration from defaults, an optional YAML or TOML file,
// an optional .env file and environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Transport names accepted by the transport key.
const (
	TransportSMTPS  = "smtps"
	TransportSES    = "ses"
	TransportGraph  = "graph"
	TransportResend = "resend"
	TransportStdout = "stdout"
)

const (
	defaultSMTPPort       = 465
	defaultSMTPTimeout    = 30 * time.Second
	defaultSinkListen     = "127.0.0.1:4650"
	defaultMaxMessageSize = 10 * 1024 * 1024
)

// Config holds the complete application configuration.
type Config struct {
	Transport string        `yaml:"transport" toml:"transport"`
	SMTP      SMTPConfig    `yaml:"smtp" toml:"smtp"`
	SES       SESConfig     `yaml:"ses" toml:"ses"`
	Graph     GraphConfig   `yaml:"graph" toml:"graph"`
	Resend    ResendConfig  `yaml:"resend" toml:"resend"`
	Sink      SinkConfig    `yaml:"sink" toml:"sink"`
	Logging   LoggingConfig `yaml:"logging" toml:"logging"`
}

// SMTPConfig is the outgoing SMTPS server and the account that sends.
type SMTPConfig struct {
	Host     string        `yaml:"host" toml:"host"`
	Port     int           `yaml:"port" toml:"port"`
	Username string        `yaml:"username" toml:"username"`
	Password string        `yaml:"password" toml:"password"`
	Timeout  time.Duration `yaml:"timeout" toml:"timeout"`
	TLS      ClientTLS     `yaml:"tls" toml:"tls"`
}

// ClientTLS controls verification of the SMTPS server certificate.
type ClientTLS struct {
	CAFile             string `yaml:"ca_file" toml:"ca_file"`
	ServerName         string `yaml:"server_name" toml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" toml:"insecure_skip_verify"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region          string `yaml:"region" toml:"region"`
	AccessKeyID     string `yaml:"access_key_id" toml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" toml:"secret_access_key"`
	Sender          string `yaml:"sender" toml:"sender"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id" toml:"tenant_id"`
	ClientID     string `yaml:"client_id" toml:"client_id"`
	ClientSecret string `yaml:"client_secret" toml:"client_secret"`
	Sender       string `yaml:"sender" toml:"sender"`
}

// ResendConfig holds Resend API configuration.
type ResendConfig struct {
	APIKey string `yaml:"api_key" toml:"api_key"`
	Sender string `yaml:"sender" toml:"sender"`
}

// SinkConfig configures the local SMTPS sink.
type SinkConfig struct {
	Listen         string `yaml:"listen" toml:"listen"`
	Username       string `yaml:"username" toml:"username"`
	Password       string `yaml:"password" toml:"password"`
	CertFile       string `yaml:"cert_file" toml:"cert_file"`
	KeyFile        string `yaml:"key_file" toml:"key_file"`
	MaxMessageSize int    `yaml:"max_message_size" toml:"max_message_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load builds a configuration from defaults and environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile reads a YAML (.yaml, .yml) or TOML (.toml) file over the defaults, then applies
// environment variables on top.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported config file extension %q", ErrInvalidConfig, ext)
	}

	cfg.applyEnvVars()
	return cfg, nil
}

// LoadEnvFile exports the variables of a .env file into the process environment. Variables
// that are already set are left alone.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// Validate checks that the selected transport has what it needs.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportSMTPS:
		if c.SMTP.Host == "" {
			return fmt.Errorf("%w: smtp.host is required", ErrInvalidConfig)
		}
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			return fmt.Errorf("%w: smtp.port %d out of range", ErrInvalidConfig, c.SMTP.Port)
		}
	case TransportSES:
		if c.SES.Region == "" {
			return fmt.Errorf("%w: ses.region is required", ErrInvalidConfig)
		}
	case TransportGraph:
		if !c.GraphConfigured() {
			return fmt.Errorf("%w: graph.tenant_id, graph.client_id, graph.client_secret and graph.sender are required", ErrInvalidConfig)
		}
	case TransportResend:
		if c.Resend.APIKey == "" {
			return fmt.Errorf("%w: resend.api_key is required", ErrInvalidConfig)
		}
	case TransportStdout:
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Transport)
	}
	return nil
}

// GraphConfigured returns true if all four Graph API credentials are set.
func (c *Config) GraphConfigured() bool {
	return c.Graph.TenantID != "" &&
		c.Graph.ClientID != "" &&
		c.Graph.ClientSecret != "" &&
		c.Graph.Sender != ""
}

// SinkAuthEnabled returns true if both sink credentials are set.
func (c *Config) SinkAuthEnabled() bool {
	return c.Sink.Username != "" && c.Sink.Password != ""
}

// Sender is the From address for the selected transport: the SMTP username unless a
// transport-specific sender is configured.
func (c *Config) Sender() string {
	switch c.Transport {
	case TransportSES:
		if c.SES.Sender != "" {
			return c.SES.Sender
		}
	case TransportGraph:
		if c.Graph.Sender != "" {
			return c.Graph.Sender
		}
	case TransportResend:
		if c.Resend.Sender != "" {
			return c.Resend.Sender
		}
	}
	return c.SMTP.Username
}

func (c *Config) applyDefaults() {
	c.Transport = TransportSMTPS
	c.SMTP.Port = defaultSMTPPort
	c.SMTP.Timeout = defaultSMTPTimeout
	c.Sink.Listen = defaultSinkListen
	c.Sink.MaxMessageSize = defaultMaxMessageSize
	c.Logging.Level = "info"
	c.Logging.Format = "json"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty, well-formed values override existing ones.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("TRANSPORT"); v != "" {
		c.Transport = strings.ToLower(v)
	}

	setString(&c.SMTP.Host, "SMTP_HOST")
	setInt(&c.SMTP.Port, "SMTP_PORT")
	setString(&c.SMTP.Username, "SMTP_USERNAME")
	setString(&c.SMTP.Password, "SMTP_PASSWORD")
	if v := os.Getenv("SMTP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.SMTP.Timeout = d
		}
	}
	setString(&c.SMTP.TLS.CAFile, "SMTP_TLS_CA_FILE")
	setString(&c.SMTP.TLS.ServerName, "SMTP_TLS_SERVER_NAME")
	if v := os.Getenv("SMTP_TLS_INSECURE_SKIP_VERIFY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.SMTP.TLS.InsecureSkipVerify = b
		}
	}

	setString(&c.SES.Region, "SES_REGION")
	setString(&c.SES.AccessKeyID, "SES_ACCESS_KEY_ID")
	setString(&c.SES.SecretAccessKey, "SES_SECRET_ACCESS_KEY")
	setString(&c.SES.Sender, "SES_SENDER")

	setString(&c.Graph.TenantID, "GRAPH_TENANT_ID")
	setString(&c.Graph.ClientID, "GRAPH_CLIENT_ID")
	setString(&c.Graph.ClientSecret, "GRAPH_CLIENT_SECRET")
	setString(&c.Graph.Sender, "GRAPH_SENDER")

	setString(&c.Resend.APIKey, "RESEND_API_KEY")
	setString(&c.Resend.Sender, "RESEND_SENDER")

	setString(&c.Sink.Listen, "SINK_LISTEN")
	setString(&c.Sink.Username, "SINK_USERNAME")
	setString(&c.Sink.Password, "SINK_PASSWORD")
	setString(&c.Sink.CertFile, "SINK_CERT_FILE")
	setString(&c.Sink.KeyFile, "SINK_KEY_FILE")
	setInt(&c.Sink.MaxMessageSize, "SINK_MAX_MESSAGE_SIZE")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
