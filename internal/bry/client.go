// Package bry talks to the BRy registration authority (AR) API.
package bry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Environments
const (
	EnvProduction   = "production"
	EnvHomologation = "homologation"
)

// Default emission portals per environment
const (
	ProductionEmissionBaseURL   = "https://ar.bry.com.br"
	HomologationEmissionBaseURL = "https://ar-homologacao.bry.com.br"
)

// ErrProtocolNotFound is returned when the AR does not know a protocol
var ErrProtocolNotFound = errors.New("protocol not found at registration authority")

// EmissionBaseURL returns the emission portal for env unless override is set
func EmissionBaseURL(env, override string) string {
	if override != "" {
		return strings.TrimRight(override, "/")
	}
	if env == EnvProduction {
		return ProductionEmissionBaseURL
	}
	return HomologationEmissionBaseURL
}

// Client fetches request state from the AR
type Client struct {
	http *resty.Client
}

// NewClient creates a client for the AR API at baseURL
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	if token != "" {
		c.SetAuthToken(token)
	}
	return &Client{http: c}
}

// FetchStatus returns the raw status document of protocol. The document has
// the same shape as the AR's webhook payload.
func (c *Client) FetchStatus(ctx context.Context, protocol string) ([]byte, error) {
	res, err := c.http.R().
		SetContext(ctx).
		Get("/api/solicitacoes/" + url.PathEscape(protocol) + "/status")
	if err != nil {
		return nil, fmt.Errorf("bry request failed: %w", err)
	}
	switch {
	case res.StatusCode() == 404:
		return nil, ErrProtocolNotFound
	case res.IsError():
		return nil, fmt.Errorf("bry returned %d for protocol %s", res.StatusCode(), protocol)
	}
	return res.Body(), nil
}
