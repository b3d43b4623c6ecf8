// Package poller periodically refreshes the status of in-flight certificate
// requests and reports changes.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/signdesk/certsync/internal/status"
)

// ErrPollInProgress is returned by PollOnce when the previous poll has not finished
var ErrPollInProgress = errors.New("poll already in progress")

// Fetcher returns the current status of a protocol
type Fetcher interface {
	Fetch(ctx context.Context, protocol string) (status.Status, error)
}

// Source supplies protocols to track at the start of every poll
type Source interface {
	Tracked(ctx context.Context) (map[string]status.Status, error)
}

// Change is an observed status change
type Change struct {
	Protocol string
	From     status.Status
	To       status.Status
}

// Poller tracks protocols and refreshes their status on an interval
type Poller struct {
	fetcher      Fetcher
	source       Source
	interval     time.Duration
	fetchTimeout time.Duration
	onChange     func([]Change)
	logger       *slog.Logger

	mu      sync.Mutex
	tracked map[string]status.Status

	polling atomic.Bool

	startLock sync.Mutex
	scheduler gocron.Scheduler
}

// Option configures a Poller
type Option func(*Poller)

// WithSource merges protocols from src into the tracked set before each poll
func WithSource(src Source) Option {
	return func(p *Poller) { p.source = src }
}

// WithFetchTimeout bounds each status fetch
func WithFetchTimeout(d time.Duration) Option {
	return func(p *Poller) { p.fetchTimeout = d }
}

// OnChange registers the callback invoked with all changes of one poll
func OnChange(fn func([]Change)) Option {
	return func(p *Poller) { p.onChange = fn }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// New creates a poller that runs every interval once started
func New(fetcher Fetcher, interval time.Duration, opts ...Option) *Poller {
	p := &Poller{
		fetcher:      fetcher,
		interval:     interval,
		fetchTimeout: 15 * time.Second,
		logger:       slog.Default(),
		tracked:      make(map[string]status.Status),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Track starts following protocol, last seen in status st
func (p *Poller) Track(protocol string, st status.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracked[protocol] = st
}

// Untrack stops following protocol
func (p *Poller) Untrack(protocol string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tracked, protocol)
}

// Tracked returns a copy of the tracked set
func (p *Poller) Tracked() map[string]status.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]status.Status, len(p.tracked))
	for k, v := range p.tracked {
		out[k] = v
	}
	return out
}

// PollOnce fetches every tracked protocol once. Overlapping calls return
// ErrPollInProgress without fetching anything.
func (p *Poller) PollOnce(ctx context.Context) ([]Change, error) {
	if !p.polling.CompareAndSwap(false, true) {
		return nil, ErrPollInProgress
	}
	defer p.polling.Store(false)

	var errs []error
	if p.source != nil {
		found, err := p.source.Tracked(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		p.mu.Lock()
		for protocol, st := range found {
			if _, ok := p.tracked[protocol]; !ok {
				p.tracked[protocol] = st
			}
		}
		p.mu.Unlock()
	}

	snapshot := p.Tracked()
	protocols := make([]string, 0, len(snapshot))
	for protocol := range snapshot {
		protocols = append(protocols, protocol)
	}
	sort.Strings(protocols)

	var changes []Change
	for _, protocol := range protocols {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		current, err := p.fetch(ctx, protocol)
		if err != nil {
			p.logger.Warn("status fetch failed", "protocol", protocol, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", protocol, err))
			continue
		}

		previous := snapshot[protocol]
		if current == previous {
			continue
		}
		changes = append(changes, Change{Protocol: protocol, From: previous, To: current})

		p.mu.Lock()
		if current.Terminal() {
			delete(p.tracked, protocol)
		} else if _, ok := p.tracked[protocol]; ok {
			p.tracked[protocol] = current
		}
		p.mu.Unlock()
	}

	if len(changes) > 0 && p.onChange != nil {
		p.onChange(changes)
	}
	return changes, errors.Join(errs...)
}

func (p *Poller) fetch(ctx context.Context, protocol string) (status.Status, error) {
	if p.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.fetchTimeout)
		defer cancel()
	}
	return p.fetcher.Fetch(ctx, protocol)
}

// Start schedules PollOnce every interval, beginning immediately
func (p *Poller) Start() error {
	p.startLock.Lock()
	defer p.startLock.Unlock()

	if p.scheduler != nil {
		p.logger.Warn("poller is already started, skipping")
		return nil
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(p.interval),
		gocron.NewTask(p.run),
		gocron.WithName("status_poller"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("failed to create poll job: %w", err)
	}

	scheduler.Start()
	p.scheduler = scheduler
	p.logger.Info("poller started", "interval", p.interval)
	return nil
}

// Stop shuts the scheduler down and waits for a running poll to return
func (p *Poller) Stop() error {
	p.startLock.Lock()
	defer p.startLock.Unlock()

	if p.scheduler == nil {
		return nil
	}
	err := p.scheduler.Shutdown()
	p.scheduler = nil
	if err != nil {
		return fmt.Errorf("failed to stop poller: %w", err)
	}
	return nil
}

func (p *Poller) run(ctx context.Context) {
	changes, err := p.PollOnce(ctx)
	switch {
	case errors.Is(err, ErrPollInProgress):
		p.logger.Debug("previous poll still running, skipping tick")
	case err != nil:
		p.logger.Warn("poll finished with errors", "changes", len(changes), "error", err)
	default:
		p.logger.Debug("poll finished", "changes", len(changes))
	}
}
