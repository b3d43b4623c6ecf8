package certsync

import (
	"context"
	"fmt"

	"github.com/signdesk/certsync/internal/db/repository"
	"github.com/signdesk/certsync/internal/status"
)

// Sync pulls the current AR state of protocol and processes it as an event
func (e *Engine) Sync(ctx context.Context, protocol string) (Result, error) {
	if e.fetcher == nil {
		return Result{}, ErrSyncUnavailable
	}

	body, err := e.fetcher.FetchStatus(ctx, protocol)
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch status of %s: %w", protocol, err)
	}
	ev, err := ParseEvent(body)
	if err != nil {
		return Result{}, err
	}
	ev.Protocol = protocol
	ev.Source = SourceSync

	return e.Process(ctx, ev), nil
}

// SyncFetcher adapts Engine.Sync to the poller, reporting the stored status after each sync
type SyncFetcher struct {
	Engine *Engine
}

func (f SyncFetcher) Fetch(ctx context.Context, protocol string) (status.Status, error) {
	res, err := f.Engine.Sync(ctx, protocol)
	if err != nil {
		return "", err
	}
	if res.Current == "" {
		return "", fmt.Errorf("sync of %s finished with outcome %s", protocol, res.Outcome)
	}
	return res.Current, nil
}

// InFlightSource lists the requests the reconciler should keep polling
type InFlightSource struct {
	Store repository.Requests
	Limit int
}

func (s InFlightSource) Tracked(ctx context.Context) (map[string]status.Status, error) {
	reqs, err := s.Store.ListInFlight(ctx, s.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list in-flight requests: %w", err)
	}
	out := make(map[string]status.Status, len(reqs))
	for _, r := range reqs {
		out[r.Protocol] = r.Status
	}
	return out, nil
}
