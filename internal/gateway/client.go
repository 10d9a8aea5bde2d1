// Package gateway is the Evolution API client used to inspect WhatsApp
// instances and deliver messages.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ignite/whatsapp-warmup/internal/config"
	"github.com/ignite/whatsapp-warmup/internal/pkg/httpretry"
	"github.com/ignite/whatsapp-warmup/internal/pkg/logger"
)

// Client is an Evolution API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a client from gateway config. Reads are retried;
// sends are attempted once and bounded by the configured timeout.
func NewClient(cfg config.GatewayConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/") + "/api",
		apiKey:     cfg.APIKey,
		httpClient: httpretry.NewRetryClient(&http.Client{Timeout: cfg.Timeout()}, cfg.MaxRetries),
	}
}

// NewClientWithDoer creates a client around a custom HTTPDoer.
func NewClientWithDoer(baseURL, apiKey string, doer httpretry.HTTPDoer) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api",
		apiKey:     apiKey,
		httpClient: doer,
	}
}

func (c *Client) doRequest(ctx context.Context, op, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &SendError{Op: op, Err: fmt.Errorf("marshaling request body: %w", err)}
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return &SendError{Op: op, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &SendError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &SendError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warn("gateway call failed", "op", op, "status", resp.StatusCode)
		return &SendError{Op: op, Status: resp.StatusCode, Body: string(respBody)}
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &SendError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
		}
	}
	return nil
}

// InstanceState fetches the connection state of an instance.
func (c *Client) InstanceState(ctx context.Context, instance string) (InstanceState, error) {
	var state InstanceState
	err := c.doRequest(ctx, "getInstance", http.MethodGet, "/instance/"+url.PathEscape(instance), nil, &state)
	if err != nil {
		return InstanceState{}, err
	}
	if state.Instance == "" {
		state.Instance = instance
	}
	return state, nil
}

// SendText delivers a text message.
func (c *Client) SendText(ctx context.Context, instance string, msg TextMessage) (SendResult, error) {
	var res SendResult
	err := c.doRequest(ctx, "sendText", http.MethodPost, "/message/sendText/"+url.PathEscape(instance), msg, &res)
	return res, err
}

// SendMedia delivers an image, video, audio or document.
func (c *Client) SendMedia(ctx context.Context, instance string, msg MediaMessage) (SendResult, error) {
	var res SendResult
	err := c.doRequest(ctx, "sendMedia", http.MethodPost, "/message/sendMedia/"+url.PathEscape(instance), msg, &res)
	return res, err
}
