// Package siem talks to the upstream SIEM backend: a REST client for pulling
// additional labeled alerts and pushing classifications, and a WebSocket
// subscriber for the live alert feed.
package siem

import (
	"context"
	"fmt"
	"time"

	"alertguard/internal/alert"

	"github.com/go-resty/resty/v2"
)

// Client is the REST client for the SIEM backend API.
type Client struct {
	base  string
	token string
	rest  *resty.Client
}

// NewClient creates a REST client for the SIEM backend at base, authenticating
// with a bearer token.
func NewClient(base, token string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second)
	}
	return &Client{base: base, token: token, rest: r}
}

type apiError struct {
	Detail string `json:"detail"`
}

// LabeledAlert is one alert plus its confirmed label, as returned by the
// SIEM backend's labeled-corpus endpoint.
type LabeledAlert struct {
	Alert      alert.Record `json:"alert"`
	Label      string       `json:"label"`
	Provenance string       `json:"provenance"`
}

type labeledResp struct {
	Alerts []LabeledAlert `json:"alerts"`
	Total  int            `json:"total"`
}

// FetchLabeled pulls up to limit labeled alerts from the backend. Used to
// seed the local corpus when this service starts against an already-running
// SIEM with human-reviewed history.
func (c *Client) FetchLabeled(ctx context.Context, limit int) ([]LabeledAlert, error) {
	out := &labeledResp{}
	apiErr := &apiError{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetAuthToken(c.token).
		SetQueryParam("limit", fmt.Sprintf("%d", limit)).
		SetResult(out).
		SetError(apiErr).
		Get(c.base + "/api/v1/alerts/labeled")
	if err != nil {
		return nil, fmt.Errorf("fetch labeled alerts: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch labeled alerts: %s: %s", resp.Status(), apiErr.Detail)
	}
	return out.Alerts, nil
}

type classifyReq struct {
	AlertID    string `json:"alert_id"`
	Label      string `json:"label"`
	Provenance string `json:"provenance"`
}

// PushClassification reports an auto-classification back to the SIEM backend
// so analysts see it alongside the alert.
func (c *Client) PushClassification(ctx context.Context, alertID, label, provenance string) error {
	apiErr := &apiError{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetAuthToken(c.token).
		SetBody(classifyReq{AlertID: alertID, Label: label, Provenance: provenance}).
		SetError(apiErr).
		Post(c.base + "/api/v1/classify")
	if err != nil {
		return fmt.Errorf("push classification: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("push classification: %s: %s", resp.Status(), apiErr.Detail)
	}
	return nil
}
