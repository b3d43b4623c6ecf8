// Package statusclient reads request status from a running certsync server.
package statusclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/signdesk/certsync/internal/status"
)

// ErrNotFound is returned for protocols the server does not know
var ErrNotFound = errors.New("request not found")

// StatusResponse is the body of GET /v1/requests/:protocol/status
type StatusResponse struct {
	Protocol  string        `json:"protocol"`
	Status    status.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client calls the certsync HTTP API
type Client struct {
	http *resty.Client
}

// New creates a client for the server at baseURL
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

// Status fetches the status document of protocol
func (c *Client) Status(ctx context.Context, protocol string) (*StatusResponse, error) {
	var out StatusResponse
	var apiErr errorResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiErr).
		Get("/v1/requests/" + url.PathEscape(protocol) + "/status")
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	if res.StatusCode() == 404 {
		return nil, ErrNotFound
	}
	if res.IsError() {
		return nil, fmt.Errorf("server returned %d: %s", res.StatusCode(), apiErr.Message)
	}
	return &out, nil
}

// Fetch returns just the status, for use with the poller
func (c *Client) Fetch(ctx context.Context, protocol string) (status.Status, error) {
	res, err := c.Status(ctx, protocol)
	if err != nil {
		return "", err
	}
	return res.Status, nil
}
