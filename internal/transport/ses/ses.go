// Package ses implements a Transport that sends messages via AWS SES v2.
package ses

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/shineum/mailsend/internal/email"
)

// maxRetries is the maximum number of retry attempts for transient failures.
const maxRetries = 3

// baseRetryDelay is the initial delay for exponential backoff.
const baseRetryDelay = 1 * time.Second

// Config holds the configuration for creating a Transport.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string

	// Sender overrides the message From as the SES source identity when set.
	Sender string
}

// Transport sends messages via the AWS SES v2 API.
type Transport struct {
	sender     string
	client     SendEmailAPI
	retryDelay time.Duration
}

// SendEmailAPI is the subset of the SES v2 client used by Transport.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a Transport, loading AWS credentials from the static keys when both are given
// and from the default chain otherwise.
func New(ctx context.Context, cfg Config) (*Transport, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Transport{
		sender:     cfg.Sender,
		client:     sesv2.NewFromConfig(awsCfg),
		retryDelay: baseRetryDelay,
	}, nil
}

// NewWithClient creates a Transport with a custom client.
func NewWithClient(sender string, client SendEmailAPI) *Transport {
	return &Transport{
		sender:     sender,
		client:     client,
		retryDelay: baseRetryDelay,
	}
}

// Send delivers msg. A message with a single text part and no attachment uses the SES simple
// format; anything else is sent as raw MIME so part order and the signature are preserved.
func (t *Transport) Send(ctx context.Context, msg *email.Message) error {
	var input *sesv2.SendEmailInput

	if isSimple(msg) {
		input = buildSimpleInput(t.source(msg), msg)
	} else {
		raw, err := msg.Bytes()
		if err != nil {
			return fmt.Errorf("failed to build raw message: %w", err)
		}
		input = &sesv2.SendEmailInput{
			FromEmailAddress: aws.String(t.source(msg)),
			Destination:      &types.Destination{ToAddresses: []string{msg.To}},
			Content: &types.EmailContent{
				Raw: &types.RawMessage{Data: raw},
			},
		}
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying SES API request",
				"attempt", attempt,
				"max_retries", maxRetries,
			)
			if err := sleepWithContext(ctx, backoffDelay(t.retryDelay, attempt)); err != nil {
				return fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		}

		_, err := t.client.SendEmail(ctx, input)
		if err == nil {
			return nil
		}

		lastErr = err
		slog.Warn("SES API error",
			"attempt", attempt,
			"error", err,
		)
	}

	return fmt.Errorf("SES API request failed after %d retries: %w", maxRetries, lastErr)
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "ses"
}

func (t *Transport) source(msg *email.Message) string {
	if t.sender != "" {
		return t.sender
	}
	return msg.From
}

func isSimple(msg *email.Message) bool {
	return !msg.HasAttachment() && len(msg.TextParts()) <= 1
}

// buildSimpleInput creates a SES SendEmailInput for a message with at most one text part.
func buildSimpleInput(source string, msg *email.Message) *sesv2.SendEmailInput {
	body := &types.Body{}
	if texts := msg.TextParts(); len(texts) == 1 {
		body.Text = &types.Content{
			Data:    aws.String(texts[0]),
			Charset: aws.String("UTF-8"),
		}
	}

	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(source),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(msg.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: body,
			},
		},
	}
}

// backoffDelay returns the exponential backoff delay for the given attempt number.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
