// Package adminclient is the HTTP client for a game server's admin API.
package adminclient

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/cory-johannsen/duel/internal/admin"
	"github.com/cory-johannsen/duel/internal/session"
)

// ErrNotFound is returned when the server has no such match.
var ErrNotFound = errors.New("not found")

// Client talks to one admin endpoint.
type Client struct {
	rest *resty.Client
}

// New creates a client for baseURL, e.g. http://127.0.0.1:8090.
func New(baseURL string, timeout time.Duration) *Client {
	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{rest: rest}
}

// Health returns nil when the server reports healthy, otherwise the
// failing checks.
func (c *Client) Health() (map[string]string, error) {
	var body map[string]string
	resp, err := c.rest.R().SetResult(&body).SetError(&body).Get("/healthz")
	if err != nil {
		return nil, fmt.Errorf("requesting health: %w", err)
	}
	if resp.StatusCode() == http.StatusOK {
		return nil, nil
	}
	if resp.StatusCode() != http.StatusServiceUnavailable {
		return nil, statusError(resp)
	}
	return body, nil
}

// Stats fetches server counters.
func (c *Client) Stats() (admin.StatsResponse, error) {
	var stats admin.StatsResponse
	resp, err := c.rest.R().SetResult(&stats).Get("/stats")
	if err != nil {
		return stats, fmt.Errorf("requesting stats: %w", err)
	}
	if resp.IsError() {
		return stats, statusError(resp)
	}
	return stats, nil
}

// Matches lists live matches, optionally filtered by state.
func (c *Client) Matches(state string) ([]session.MatchInfo, error) {
	var matches []session.MatchInfo
	req := c.rest.R().SetResult(&matches)
	if state != "" {
		req.SetQueryParam("state", state)
	}
	resp, err := req.Get("/matches")
	if err != nil {
		return nil, fmt.Errorf("requesting matches: %w", err)
	}
	if resp.IsError() {
		return nil, statusError(resp)
	}
	return matches, nil
}

// Match fetches one match.
func (c *Client) Match(id string) (session.MatchInfo, error) {
	var match session.MatchInfo
	resp, err := c.rest.R().SetResult(&match).SetPathParam("id", id).Get("/matches/{id}")
	if err != nil {
		return match, fmt.Errorf("requesting match %s: %w", id, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return match, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	if resp.IsError() {
		return match, statusError(resp)
	}
	return match, nil
}

// EndMatch terminates a match. Both players are returned to matchmaking.
func (c *Client) EndMatch(id string) error {
	resp, err := c.rest.R().SetPathParam("id", id).Delete("/matches/{id}")
	if err != nil {
		return fmt.Errorf("ending match %s: %w", id, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	if resp.IsError() {
		return statusError(resp)
	}
	return nil
}

// SetLatency sets the simulated one-way delay in milliseconds.
func (c *Client) SetLatency(ms float64) (admin.LatencyResponse, error) {
	var out admin.LatencyResponse
	resp, err := c.rest.R().
		SetResult(&out).
		SetPathParam("ms", strconv.FormatFloat(ms, 'f', -1, 64)).
		Put("/latency/{ms}")
	if err != nil {
		return out, fmt.Errorf("setting latency: %w", err)
	}
	if resp.IsError() {
		return out, statusError(resp)
	}
	return out, nil
}

// StatusError is a non-2xx reply from the admin API.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("admin api returned %d: %s", e.Status, e.Message)
}

func statusError(resp *resty.Response) error {
	return &StatusError{Status: resp.StatusCode(), Message: resp.String()}
}
