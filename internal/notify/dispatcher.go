// Package notify renders and sends applicant emails for status changes.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/signdesk/certsync/internal/models"
	"github.com/signdesk/certsync/internal/status"
)

// Notice is everything needed to tell one applicant about one status
type Notice struct {
	Status          status.Status
	Email           string
	Name            string
	Protocol        string
	EmissionURL     string
	RejectionReason string
}

// Message is a rendered email
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	Text    string
	Tags    map[string]string
}

// Mailer delivers a rendered message and returns the provider message id
type Mailer interface {
	Send(ctx context.Context, msg *Message) (string, error)
	Name() string
}

// DeliveryRecorder stores one row per delivery attempt
type DeliveryRecorder interface {
	Record(ctx context.Context, n *models.Notification) error
}

// Dispatcher selects the template for a status and sends it to the applicant
type Dispatcher struct {
	mailer   Mailer
	recorder DeliveryRecorder
	from     string
	brand    string
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithRecorder records every delivery attempt
func WithRecorder(r DeliveryRecorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithBrand sets the name shown in the email header and footer
func WithBrand(brand string) Option {
	return func(d *Dispatcher) { d.brand = brand }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a dispatcher sending from the given address
func NewDispatcher(mailer Mailer, from string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		mailer: mailer,
		from:   from,
		brand:  "SignDesk Certificados",
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HasTemplate reports whether a status produces an email
func HasTemplate(s status.Status) bool {
	_, ok := templateFor(s)
	return ok
}

// Notify sends the email for n.Status. It returns a nil record when the status
// has no template. Delivery errors are returned together with the failed record.
func (d *Dispatcher) Notify(ctx context.Context, n Notice) (*models.Notification, error) {
	cfg, ok := templateFor(n.Status)
	if !ok {
		return nil, nil
	}
	if n.Email == "" {
		return nil, fmt.Errorf("no recipient for protocol %s", n.Protocol)
	}

	record := &models.Notification{
		Protocol:  n.Protocol,
		Status:    string(n.Status),
		Recipient: n.Email,
		Template:  cfg.Name,
		Provider:  d.mailer.Name(),
	}

	html, text, err := render(d.brand, cfg, n)
	if err != nil {
		return d.finish(ctx, record, err)
	}

	providerID, err := d.mailer.Send(ctx, &Message{
		From:    d.from,
		To:      n.Email,
		Subject: cfg.Subject,
		HTML:    html,
		Text:    text,
		Tags: map[string]string{
			"protocol": n.Protocol,
			"template": cfg.Name,
		},
	})
	if err != nil {
		return d.finish(ctx, record, fmt.Errorf("failed to send %s email: %w", cfg.Name, err))
	}

	record.ProviderID = providerID
	return d.finish(ctx, record, nil)
}

func (d *Dispatcher) finish(ctx context.Context, record *models.Notification, sendErr error) (*models.Notification, error) {
	record.SentAt = d.now().UTC()
	record.Success = sendErr == nil
	if sendErr != nil {
		record.ErrorMsg = sendErr.Error()
	}

	if d.recorder != nil {
		if err := d.recorder.Record(ctx, record); err != nil {
			d.logger.Warn("failed to record notification",
				"protocol", record.Protocol, "template", record.Template, "error", err)
		}
	}

	return record, sendErr
}
