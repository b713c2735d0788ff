// Package client posts incident events to the PagerDuty Events API v2.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"

	"incidentbridge/src/pagerduty/types"
)

const (
	DefaultURL     = "https://events.pagerduty.com/v2/enqueue"
	DefaultTimeout = 30 * time.Second

	acceptHeader = "application/vnd.pagerduty+json;version=2"
)

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	url  string
	http Doer
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(doer Doer) Option {
	return func(c *Client) {
		c.http = doer
	}
}

// WithTracing wraps the HTTP transport so every request is recorded as an
// X-Ray subsegment.
func WithTracing(timeout time.Duration) Option {
	return func(c *Client) {
		c.http = xray.Client(&http.Client{Timeout: timeout})
	}
}

func New(url string, timeout time.Duration, opts ...Option) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) URL() string {
	return c.url
}

// SendEvent makes exactly one POST. Transport failures and non-2xx replies
// are Delivery errors carrying the upstream status and body; a 2xx reply
// without a usable status is a MalformedResponse error.
func (c *Client) SendEvent(ctx context.Context, apiToken string, event types.IncidentEventRequest) (types.IncidentEventResponse, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return types.IncidentEventResponse{}, fmt.Errorf("failed to encode incident event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return types.IncidentEventResponse{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Authorization", "Token token="+apiToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return types.IncidentEventResponse{}, types.DeliveryError("request to PagerDuty failed", 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.IncidentEventResponse{}, types.DeliveryError("failed to read PagerDuty response", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return types.IncidentEventResponse{}, types.DeliveryError(
			fmt.Sprintf("PagerDuty returned %d: %s", resp.StatusCode, string(respBody)), resp.StatusCode, nil)
	}

	return ParseResponse(respBody)
}

// ParseResponse decodes an Events API reply body.
func ParseResponse(body []byte) (types.IncidentEventResponse, error) {
	var out types.IncidentEventResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return types.IncidentEventResponse{}, types.MalformedResponseError(
			fmt.Sprintf("unparsable PagerDuty response: %s", string(body)), err)
	}
	if out.Status == "" {
		return types.IncidentEventResponse{}, types.MalformedResponseError(
			fmt.Sprintf("PagerDuty response has no status: %s", string(body)), nil)
	}
	return out, nil
}
