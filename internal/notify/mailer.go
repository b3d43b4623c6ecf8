package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// DefaultResendBaseURL is the public Resend API endpoint
const DefaultResendBaseURL = "https://api.resend.com"

// ResendMailer sends through the Resend REST API
type ResendMailer struct {
	client *resty.Client
}

type resendTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type resendRequest struct {
	From    string      `json:"from"`
	To      []string    `json:"to"`
	Subject string      `json:"subject"`
	HTML    string      `json:"html"`
	Text    string      `json:"text,omitempty"`
	Tags    []resendTag `json:"tags,omitempty"`
}

type resendResponse struct {
	ID string `json:"id"`
}

type resendError struct {
	StatusCode int    `json:"statusCode"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}

// NewResendMailer creates a Resend mailer. An empty baseURL uses the public API.
func NewResendMailer(apiKey, baseURL string, timeout time.Duration) *ResendMailer {
	if baseURL == "" {
		baseURL = DefaultResendBaseURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &ResendMailer{client: client}
}

func (m *ResendMailer) Name() string { return "resend" }

// Send posts msg to /emails and returns the Resend message id
func (m *ResendMailer) Send(ctx context.Context, msg *Message) (string, error) {
	body := resendRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	}
	names := make([]string, 0, len(msg.Tags))
	for k := range msg.Tags {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		body.Tags = append(body.Tags, resendTag{Name: resendTagValue(k), Value: resendTagValue(msg.Tags[k])})
	}

	var out resendResponse
	var apiErr resendError
	res, err := m.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", uuid.NewString()).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/emails")
	if err != nil {
		return "", fmt.Errorf("resend request failed: %w", err)
	}
	if res.IsError() {
		if apiErr.Message != "" {
			return "", fmt.Errorf("resend returned %d: %s", res.StatusCode(), apiErr.Message)
		}
		return "", fmt.Errorf("resend returned %d", res.StatusCode())
	}
	return out.ID, nil
}

// resendTagValue replaces characters Resend rejects in tag names and values
func resendTagValue(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, s)
}

// LogMailer writes messages to the log instead of sending them
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Name() string { return "log" }

func (m *LogMailer) Send(_ context.Context, msg *Message) (string, error) {
	id := uuid.NewString()
	m.logger.Info("email not sent (log provider)",
		"id", id, "to", msg.To, "subject", msg.Subject, "template", msg.Tags["template"], "protocol", msg.Tags["protocol"])
	return id, nil
}
