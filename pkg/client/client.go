// Package client talks to a shopagent server the way a chat front end does:
// it creates a session once, posts each prompt to the run endpoint, and
// reads the reply text, tool outputs and order confirmation out of the
// event stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Client is safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
	log  logrus.FieldLogger

	mu          sync.Mutex
	initialized map[string]bool
}

// Option customises a Client.
type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.log = l }
}

func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:         cfg,
		http:        &http.Client{},
		initialized: make(map[string]bool),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		c.log = l
	}
	c.log = c.log.WithField("component", "client")
	return c
}

func (c *Client) Config() Config { return c.cfg }

// EnsureSession creates the session on the server the first time it is
// called for sessionID. A session that already exists counts as created.
func (c *Client) EnsureSession(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	done := c.initialized[sessionID]
	c.mu.Unlock()
	if done {
		return nil
	}

	path := fmt.Sprintf("/apps/%s/users/%s/sessions/%s",
		url.PathEscape(c.cfg.AppName), url.PathEscape(c.cfg.UserID), url.PathEscape(sessionID))
	_, status, err := c.post(ctx, path, map[string]any{"state": map[string]any{}}, c.cfg.SessionTimeout)
	if err != nil && status != http.StatusConflict {
		return errors.Wrap(err, "create session")
	}

	c.mu.Lock()
	c.initialized[sessionID] = true
	c.mu.Unlock()
	c.log.WithField("session", sessionID).Info("session initialized")
	return nil
}

// Run sends prompt as the next user message and returns the raw response
// body. timeout 0 uses the configured run timeout.
func (c *Client) Run(ctx context.Context, sessionID, prompt string, timeout time.Duration) ([]byte, error) {
	if timeout == 0 {
		timeout = c.cfg.RunTimeout
	}
	payload := map[string]any{
		"app_name":   c.cfg.AppName,
		"user_id":    c.cfg.UserID,
		"session_id": sessionID,
		"new_message": map[string]any{
			"role":  "user",
			"parts": []map[string]string{{"text": prompt}},
		},
		"streaming": false,
	}
	body, _, err := c.post(ctx, c.cfg.RunPath, payload, timeout)
	if err != nil {
		return nil, errors.Wrap(err, "run")
	}
	return body, nil
}

// post returns the body and status code. Status codes of 400 and above are
// errors that carry the start of the body.
func (c *Client) post(ctx context.Context, path string, payload any, timeout time.Duration) ([]byte, int, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, errors.Wrap(err, "encode payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	log := c.log.WithField("url", req.URL.String())
	log.Debug("POST")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, errors.Wrap(err, "read response")
	}
	log.WithField("status", resp.StatusCode).Debug("response")
	if resp.StatusCode >= http.StatusBadRequest {
		return body, resp.StatusCode, errors.Errorf("HTTP %d: %s", resp.StatusCode, excerpt(body, 500))
	}
	return body, resp.StatusCode, nil
}

func excerpt(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
