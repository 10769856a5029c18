// Package client is the transport layer: it talks to the veneer proxy (or any
// endpoint with the same surface) over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/papercomputeco/veneer/pkg/llm"
	"github.com/papercomputeco/veneer/pkg/logger"
)

// DefaultTarget is the proxy address used when none is configured.
const DefaultTarget = "http://localhost:8080"

// maxErrorBody caps how much of a failed response is kept on a StatusError.
const maxErrorBody = 64 * 1024

// Client issues chat, image and model listing requests.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	logger      *slog.Logger
}

// Config holds configuration for the Client.
type Config struct {
	// Target is the base URL of the proxy (e.g. "http://localhost:8080").
	Target string

	// AccessToken is sent as a bearer token when set.
	AccessToken string

	// HTTPClient overrides the default client. Streams are long-lived, so it
	// should not carry an overall Timeout.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Response is a chat response whose body the caller must close.
type Response struct {
	Body io.ReadCloser

	// EventStream is true for text/event-stream bodies. Otherwise the body is
	// a single JSON completion.
	EventStream bool

	StatusCode int
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(e.Body)
	var er llm.ErrorResponse
	if err := json.Unmarshal([]byte(msg), &er); err == nil && er.Error != "" {
		msg = er.Error
	}
	if msg == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, msg)
}

// New creates a Client.
func New(c Config) (*Client, error) {
	target := c.Target
	if target == "" {
		target = DefaultTarget
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parsing target %q: %w", target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("target %q must be an http or https URL", target)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient()
	}

	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Client{
		baseURL:     strings.TrimRight(target, "/"),
		accessToken: c.AccessToken,
		httpClient:  httpClient,
		logger:      log,
	}, nil
}

// newHTTPClient bounds connection setup but never the body read.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 2 * time.Minute,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConns:          10,
		},
	}
}

// ListModels fetches the model catalog. modelType may be empty for the
// upstream default (text models).
func (c *Client) ListModels(ctx context.Context, modelType string) ([]llm.ModelMetadata, error) {
	path := "/models"
	if modelType != "" {
		path += "?type=" + url.QueryEscape(modelType)
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	defer resp.Body.Close()

	var list llm.ModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding models response: %w", err)
	}
	return list.Items(), nil
}

// Chat sends a chat request. Cancelling ctx aborts the request and any read
// of the returned body.
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*Response, error) {
	if req == nil {
		return nil, errors.New("chat request is nil")
	}

	resp, err := c.do(ctx, http.MethodPost, "/chat", req)
	if err != nil {
		return nil, fmt.Errorf("sending chat request: %w", err)
	}

	ct := resp.Header.Get("Content-Type")
	c.logger.Debug("chat response",
		"status", resp.StatusCode,
		"content_type", ct,
	)

	return &Response{
		Body:        resp.Body,
		EventStream: strings.HasPrefix(ct, "text/event-stream"),
		StatusCode:  resp.StatusCode,
	}, nil
}

// GenerateImage requests image generation and returns the decoded response.
func (c *Client) GenerateImage(ctx context.Context, req *llm.ImageRequest) (*llm.ImageResponse, error) {
	if req == nil {
		return nil, errors.New("image request is nil")
	}

	resp, err := c.do(ctx, http.MethodPost, "/image", req)
	if err != nil {
		return nil, fmt.Errorf("generating image: %w", err)
	}
	defer resp.Body.Close()

	var out llm.ImageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding image response: %w", err)
	}
	return &out, nil
}

// do sends a request and returns the response when its status is 2xx.
// Any other status is drained into a *StatusError.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json, text/event-stream")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	c.logger.Debug("sending request",
		"method", method,
		"path", path,
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return resp, nil
}
