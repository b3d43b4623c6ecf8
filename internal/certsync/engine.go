// Package certsync applies registration-authority status events to stored
// certificate requests and notifies applicants.
package certsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/signdesk/certsync/internal/certbundle"
	"github.com/signdesk/certsync/internal/db/repository"
	"github.com/signdesk/certsync/internal/models"
	"github.com/signdesk/certsync/internal/notify"
	"github.com/signdesk/certsync/internal/status"
)

const maxApplyAttempts = 3

// ErrSyncUnavailable is returned by Sync when no status fetcher is configured
var ErrSyncUnavailable = errors.New("status sync is not configured")

// Outcome summarizes what Process did with an event
type Outcome string

const (
	OutcomeIgnored       Outcome = "ignored"
	OutcomeNotFound      Outcome = "not_found"
	OutcomeRejected      Outcome = "rejected"
	OutcomeUnchanged     Outcome = "unchanged"
	OutcomeApplied       Outcome = "applied"
	OutcomePersistFailed Outcome = "persist_failed"
)

// Notifier sends the applicant email for a status
type Notifier interface {
	Notify(ctx context.Context, n notify.Notice) (*models.Notification, error)
}

// AuditRecorder stores audit entries
type AuditRecorder interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// StatusFetcher returns the raw status document of a protocol from the AR
type StatusFetcher interface {
	FetchStatus(ctx context.Context, protocol string) ([]byte, error)
}

// BundleInspector extracts certificate metadata from an issued bundle
type BundleInspector func(pfxBase64, password string) (*certbundle.Info, error)

// Result reports every stage of processing one event
type Result struct {
	Protocol  string
	Source    string
	RawStatus string
	Status    status.Status // mapped inbound status
	Previous  status.Status
	Current   status.Status // stored status after processing
	Outcome   Outcome

	Request      *models.CertificateRequest
	Notification *models.Notification

	PersistErr error
	NotifyErr  error
	AuditErr   error
}

// Engine processes status events. It is safe for concurrent use.
type Engine struct {
	store       repository.Requests
	notifier    Notifier
	audits      AuditRecorder
	fetcher     StatusFetcher
	emissionURL func(taxID, protocol string) string
	inspect     BundleInspector
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithAudit records one audit entry per processed event
func WithAudit(a AuditRecorder) Option {
	return func(e *Engine) { e.audits = a }
}

// WithFetcher enables Sync
func WithFetcher(f StatusFetcher) Option {
	return func(e *Engine) { e.fetcher = f }
}

// WithEmissionBaseURL sets the portal used for emission links
func WithEmissionBaseURL(baseURL string) Option {
	return func(e *Engine) {
		e.emissionURL = func(taxID, protocol string) string {
			return EmissionURL(baseURL, taxID, protocol)
		}
	}
}

// WithBundleInspector overrides PKCS#12 inspection
func WithBundleInspector(fn BundleInspector) Option {
	return func(e *Engine) { e.inspect = fn }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine over store. notifier may be nil to disable email.
func NewEngine(store repository.Requests, notifier Notifier, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		notifier: notifier,
		inspect:  certbundle.Inspect,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process applies ev. Domain problems are reported in the Result, never as a panic
// or error, so callers can always acknowledge the sender.
func (e *Engine) Process(ctx context.Context, ev Event) Result {
	if ev.Source == "" {
		ev.Source = SourceWebhook
	}
	res := Result{
		Protocol:  ev.Protocol,
		Source:    ev.Source,
		RawStatus: ev.RawStatus,
		Status:    status.Map(ev.RawStatus),
	}

	if ev.Protocol == "" || ev.RawStatus == "" {
		res.Outcome = OutcomeIgnored
		e.log(res)
		return res
	}

	req, err := e.store.GetByProtocol(ctx, ev.Protocol)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			res.Outcome = OutcomeNotFound
		} else {
			res.Outcome = OutcomePersistFailed
			res.PersistErr = fmt.Errorf("failed to load request: %w", err)
		}
		e.audit(ctx, &res)
		e.log(res)
		return res
	}
	res.Previous = req.Status
	res.Current = req.Status
	res.Request = req

	if ev.Source == SourceSync && req.Status == res.Status {
		res.Outcome = OutcomeUnchanged
		e.log(res)
		return res
	}

	if res.Status == status.Issued {
		e.fillFromBundle(&ev)
	}

	upd, err := e.apply(ctx, ev, &res)
	if res.Outcome == OutcomeRejected {
		e.audit(ctx, &res)
		e.log(res)
		return res
	}
	if err != nil {
		res.Outcome = OutcomePersistFailed
		res.PersistErr = err
	} else {
		res.Outcome = OutcomeApplied
	}

	// Tell the applicant even when the write failed.
	e.notify(ctx, ev, upd, &res)
	e.audit(ctx, &res)
	e.log(res)
	return res
}

// apply writes the update, re-reading and re-validating on version conflicts.
// It returns the last update built so notification can use its extras.
func (e *Engine) apply(ctx context.Context, ev Event, res *Result) (*models.StatusUpdate, error) {
	req := res.Request
	var upd *models.StatusUpdate

	for attempt := 1; attempt <= maxApplyAttempts; attempt++ {
		if err := status.CheckTransition(req.Status, res.Status); err != nil {
			res.Outcome = OutcomeRejected
			res.Previous = req.Status
			res.Current = req.Status
			res.Request = req
			res.PersistErr = err
			return nil, err
		}

		upd = BuildUpdate(req, ev, res.Status, e.now(), e.emissionURL)
		updated, err := e.store.ApplyUpdate(ctx, ev.Protocol, req.Version, upd)
		if err == nil {
			res.Previous = req.Status
			res.Current = updated.Status
			res.Request = updated
			return upd, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return upd, fmt.Errorf("failed to apply update: %w", err)
		}

		e.logger.Debug("version conflict, retrying", "protocol", ev.Protocol, "attempt", attempt)
		fresh, gerr := e.store.GetByProtocol(ctx, ev.Protocol)
		if gerr != nil {
			return upd, fmt.Errorf("failed to reload request after conflict: %w", gerr)
		}
		req = fresh
		res.Request = fresh
		res.Current = fresh.Status
	}

	return upd, fmt.Errorf("gave up after %d attempts: %w", maxApplyAttempts, repository.ErrConflict)
}

func (e *Engine) notify(ctx context.Context, ev Event, upd *models.StatusUpdate, res *Result) {
	if e.notifier == nil || !res.Status.Known() {
		return
	}
	req := res.Request

	n := notify.Notice{
		Status:          res.Status,
		Email:           req.Email,
		Name:            req.CommonName,
		Protocol:        req.Protocol,
		EmissionURL:     req.EmissionURL,
		RejectionReason: ev.RejectionReason,
	}
	if n.EmissionURL == "" && upd != nil && upd.EmissionURL != nil {
		n.EmissionURL = *upd.EmissionURL
	}
	if upd != nil && upd.RejectionReason != nil {
		n.RejectionReason = *upd.RejectionReason
	}

	res.Notification, res.NotifyErr = e.notifier.Notify(ctx, n)
}

func (e *Engine) audit(ctx context.Context, res *Result) {
	if e.audits == nil {
		return
	}

	action := models.ActionWebhookReceived
	if res.Source == SourceSync {
		action = models.ActionStatusSync
	}
	if res.Outcome == OutcomeRejected {
		action = models.ActionTransitionRejected
	}

	details := map[string]any{
		"raw_status": res.RawStatus,
		"outcome":    res.Outcome,
		"previous":   res.Previous,
		"notified":   res.Notification != nil && res.Notification.Success,
	}
	if res.NotifyErr != nil {
		details["notify_error"] = res.NotifyErr.Error()
	}
	detailsJSON, _ := json.Marshal(details)

	entry := &models.AuditLog{
		Action:   action,
		Protocol: res.Protocol,
		Source:   res.Source,
		Status:   string(res.Status),
		Success:  res.Outcome == OutcomeApplied,
		Details:  string(detailsJSON),
	}
	switch {
	case res.PersistErr != nil:
		entry.ErrorMsg = res.PersistErr.Error()
	case res.Outcome == OutcomeNotFound:
		entry.ErrorMsg = "unknown protocol"
	}

	if err := e.audits.Create(ctx, entry); err != nil {
		res.AuditErr = err
	}
}

func (e *Engine) log(res Result) {
	attrs := []any{
		"protocol", res.Protocol,
		"source", res.Source,
		"raw_status", res.RawStatus,
		"status", res.Status,
		"previous", res.Previous,
		"outcome", res.Outcome,
	}
	if res.Notification != nil {
		attrs = append(attrs, "template", res.Notification.Template)
	}

	level := slog.LevelInfo
	for _, stage := range []struct {
		key string
		err error
	}{
		{"persist_error", res.PersistErr},
		{"notify_error", res.NotifyErr},
		{"audit_error", res.AuditErr},
	} {
		if stage.err != nil {
			attrs = append(attrs, stage.key, stage.err)
			level = slog.LevelWarn
		}
	}
	if res.Outcome == OutcomePersistFailed {
		level = slog.LevelError
	}
	if !res.Status.Known() && res.RawStatus != "" {
		attrs = append(attrs, "unknown_status", true)
	}

	e.logger.Log(context.Background(), level, "status event processed", attrs...)
}

// fillFromBundle completes serial and validity from the bundle when the AR omitted them
func (e *Engine) fillFromBundle(ev *Event) {
	if e.inspect == nil || ev.PFXData == "" || ev.PFXPassword == "" {
		return
	}
	if ev.CertificateSerial != "" && ev.ValidFrom != nil && ev.ValidUntil != nil {
		return
	}

	info, err := e.inspect(ev.PFXData, ev.PFXPassword)
	if err != nil {
		e.logger.Warn("failed to inspect issued bundle", "protocol", ev.Protocol, "error", err)
		return
	}
	if ev.CertificateSerial == "" {
		ev.CertificateSerial = info.Serial
	}
	if ev.ValidFrom == nil {
		from := info.ValidFrom
		ev.ValidFrom = &from
	}
	if ev.ValidUntil == nil {
		until := info.ValidUntil
		ev.ValidUntil = &until
	}
}
