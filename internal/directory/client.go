// Package directory implements a client for an OSC console/show-control
// directory service: a venue-management API that publishes the live list
// of lighting-console transport targets (host, port, protocol) behind an
// OAuth2 client-credentials flow (SPEC_FULL.md §B, §C supplement 3), grounded
// on the teacher's Microsoft Graph email client
// (internal/notify/graph.go).
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/sound2osc/engine/internal/util"
)

const (
	httpTimeout      = 30 * time.Second
	maxRetries       = 3
	initialRetryWait = 1 * time.Second
	maxRetryWait     = 30 * time.Second
)

// Protocol identifies which osc.Transport an endpoint expects.
type Protocol string

const (
	ProtocolUDP Protocol = "udp"
	ProtocolTCP Protocol = "tcp"
)

// Endpoint is one published OSC transport target.
type Endpoint struct {
	Name     string   `json:"name"`
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Protocol Protocol `json:"protocol"`
}

// Addr returns the endpoint's "host:port" address, as consumed by
// osc.NewUDPTransport / osc.NewTCPTransport.
func (e Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Config carries the client-credentials parameters for one directory
// service (mirrors types.GraphConfig's TenantID/ClientID/ClientSecret
// shape, generalized to an arbitrary token URL instead of a hardcoded
// Microsoft endpoint).
type Config struct {
	DirectoryURL string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Client fetches the current endpoint list from a directory service.
type Client struct {
	directoryURL string
	httpClient   *http.Client
}

// New validates cfg and returns a Client. The OAuth2 token is fetched
// lazily on first request (clientcredentials.Config.Client wraps an
// http.Client that refreshes automatically).
func New(cfg Config) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("directory: client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("directory: client secret is required")
	}
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("directory: token URL is required")
	}
	if cfg.DirectoryURL == "" {
		return nil, fmt.Errorf("directory: directory URL is required")
	}

	conf := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}

	baseClient := &http.Client{Timeout: httpTimeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, baseClient)

	return &Client{
		directoryURL: cfg.DirectoryURL,
		httpClient:   conf.Client(ctx),
	}, nil
}

// ListEndpoints fetches the current set of published OSC transport
// targets, retrying transient (5xx, 429) failures with exponential
// backoff, mirroring GraphClient.doWithRetry.
func (c *Client) ListEndpoints(ctx context.Context) ([]Endpoint, error) {
	u, err := url.Parse(c.directoryURL)
	if err != nil {
		return nil, fmt.Errorf("directory: invalid URL: %w", err)
	}

	backoff := util.NewBackoff(initialRetryWait, maxRetryWait)
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff.Next()):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("directory: create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("directory: request failed: %w", err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if readErr != nil {
				return nil, fmt.Errorf("directory: read response: %w", readErr)
			}
			var endpoints []Endpoint
			if err := json.Unmarshal(body, &endpoints); err != nil {
				return nil, fmt.Errorf("directory: decode response: %w", err)
			}
			return endpoints, nil
		case resp.StatusCode == http.StatusTooManyRequests,
			resp.StatusCode >= http.StatusInternalServerError:
			lastErr = fmt.Errorf("directory: server returned %d: %s", resp.StatusCode, string(body))
			continue
		default:
			return nil, fmt.Errorf("directory: server returned %d: %s", resp.StatusCode, string(body))
		}
	}

	return nil, fmt.Errorf("directory: max retries exceeded: %w", lastErr)
}
