package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/slack-go/slack"

	"github.com/gus-bms/db-checker/internal/model"
)

// Level colours.
const (
	ColorCritical = "#ef4444"
	ColorWarn     = "#f59e0b"
)

// Slack posts alerts to a Slack incoming webhook.
type Slack struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// Option configures a Slack notifier.
type Option func(*Slack)

// NewSlack creates a notifier for the given webhook URL.
func NewSlack(webhookURL string, opts ...Option) *Slack {
	s := &Slack{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   2,
		retryBackoff: 500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Slack) {
		s.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) Option {
	return func(s *Slack) {
		s.maxRetries = max
		s.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Slack) {
		s.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Slack) {
		s.httpClient = hc
	}
}

// WebhookError is a non-2xx response from the webhook.
type WebhookError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration // Set on 429 when Slack sends Retry-After
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("slack webhook error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *WebhookError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// ColorFor returns the attachment colour for a level.
func ColorFor(level model.Level) string {
	if level == model.LevelCritical {
		return ColorCritical
	}
	return ColorWarn
}

func buildMessage(level model.Level, title, body string) *slack.WebhookMessage {
	header := slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, title, false, false))
	section := slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, body, false, false), nil, nil)

	return &slack.WebhookMessage{
		Attachments: []slack.Attachment{{
			Color:  ColorFor(level),
			Blocks: slack.Blocks{BlockSet: []slack.Block{header, section}},
		}},
	}
}

// Notify posts one message, retrying transient failures.
func (s *Slack) Notify(ctx context.Context, level model.Level, title, body string) error {
	msg := buildMessage(level, title, body)

	if err := s.doWithRetry(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", model.ErrDispatch, err)
	}
	return nil
}

// doRequest performs a single POST.
func (s *Slack) doRequest(ctx context.Context, msg *slack.WebhookMessage) error {
	err := slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.httpClient, msg)
	if err == nil {
		return nil
	}

	var statusErr slack.StatusCodeError
	if errors.As(err, &statusErr) {
		return &WebhookError{
			StatusCode: statusErr.Code,
			Message:    http.StatusText(statusErr.Code),
		}
	}
	var rateErr *slack.RateLimitedError
	if errors.As(err, &rateErr) {
		return &WebhookError{
			StatusCode: http.StatusTooManyRequests,
			Message:    http.StatusText(http.StatusTooManyRequests),
			RetryAfter: rateErr.RetryAfter,
		}
	}
	return err
}

// doWithRetry performs the POST with jittered exponential backoff.
// Only retryable webhook errors are retried.
func (s *Slack) doWithRetry(ctx context.Context, msg *slack.WebhookMessage) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.retryBackoff
	exp.RandomizationFactor = 0.5
	exp.Multiplier = 2
	exp.MaxElapsedTime = 0
	exp.Reset()

	var b backoff.BackOff = exp
	if s.maxRetries >= 0 {
		b = backoff.WithMaxRetries(exp, uint64(s.maxRetries))
	}

	attempt := 0
	op := func() error {
		attempt++
		err := s.doRequest(ctx, msg)
		if err == nil {
			return nil
		}
		var whErr *WebhookError
		if !errors.As(err, &whErr) || !whErr.IsRetryable() {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		s.logger.Debug("retrying webhook",
			"attempt", attempt,
			"backoff", wait,
			"error", err,
		)
	}

	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
}
