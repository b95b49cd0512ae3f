// Package primary is the HTTP client for the queueing delivery server.
//
// The server exposes four fixed endpoints. A 200 response means the message
// was queued for sending, not that it was delivered.
package primary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	kit "notifyrelay/internal/transport"
)

const (
	pathSendAlert     = "/send_alert"
	pathSendMessage   = "/send_message"
	pathSendThreshold = "/send_message_threshold"
	pathSetThreshold  = "/set_sending_threshold"

	authHeader = "AuthToken"
)

type Config struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
}

// Client implements transport.Primary.
type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, errors.New("primary base url is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}, nil
}

type sendRequest struct {
	ReceiverID   int64         `json:"receiver_id,omitempty"`
	ReceiverName string        `json:"receiver_name,omitempty"`
	Text         string        `json:"text"`
	Amend        kit.Amendment `json:"amend"`
}

type thresholdRequest struct {
	Message string `json:"message"`
	Number  int    `json:"sending_threshold_number"`
	Time    int    `json:"sending_threshold_time"`
}

func (c *Client) SendAlert(ctx context.Context, to kit.Receiver, text string, amend kit.Amendment) (kit.Outcome, error) {
	code, err := c.post(ctx, pathSendAlert, newSendRequest(to, text, amend), nil)
	return kit.Outcome{StatusCode: code}, err
}

func (c *Client) SendMessage(ctx context.Context, to kit.Receiver, text string, amend kit.Amendment) (kit.Outcome, error) {
	code, err := c.post(ctx, pathSendMessage, newSendRequest(to, text, amend), nil)
	return kit.Outcome{StatusCode: code}, err
}

// SendThreshold posts to the server-side threshold endpoint. On 200 the body
// reports whether the message was queued.
func (c *Client) SendThreshold(ctx context.Context, to kit.Receiver, text string, amend kit.Amendment) (kit.Outcome, error) {
	var body struct {
		Sending *bool `json:"sending"`
	}
	code, err := c.post(ctx, pathSendThreshold, newSendRequest(to, text, amend), &body)
	if err != nil {
		return kit.Outcome{StatusCode: code}, err
	}
	out := kit.Outcome{StatusCode: code}
	if code == http.StatusOK {
		queued := body.Sending != nil && *body.Sending
		out.Queued = &queued
	}
	return out, nil
}

// SetThreshold configures a server-side threshold. The window is sent in whole seconds.
func (c *Client) SetThreshold(ctx context.Context, s kit.ThresholdSetting) (int, error) {
	return c.post(ctx, pathSetThreshold, thresholdRequest{
		Message: s.Message,
		Number:  s.Count,
		Time:    int(s.Window / time.Second),
	}, nil)
}

func newSendRequest(to kit.Receiver, text string, amend kit.Amendment) sendRequest {
	req := sendRequest{Text: text, Amend: amend}
	if to.ID != 0 {
		req.ReceiverID = to.ID
	} else {
		req.ReceiverName = to.Name
	}
	return req
}

// post sends payload as JSON and returns the status code. When out is non-nil
// and the status is 200, the response body is decoded into it.
func (c *Client) post(ctx context.Context, path string, payload any, out any) (int, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal %s payload: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return 0, fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(authHeader, c.cfg.AuthToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK || out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s response: %w", path, err)
	}
	return resp.StatusCode, nil
}
