// Package restclient is the shared HTTP client used to talk to the
// control-plane API's relay-list and version-check transports.
package restclient

import (
	"compress/gzip"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

const (
	// maxResponseSize is the maximum decompressed response body size (10 MiB).
	maxResponseSize = 10 * 1024 * 1024

	userAgentPrefix = "tunnelkeepd/"
)

// Client is a minimal HTTP client for JSON and raw-bytes GET endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	version    string
	logger     *slog.Logger
}

// New creates a Client with the given configuration.
func New(cfg Config, version string, logger *slog.Logger) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout, Transport: transport},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		version:    version,
		logger:     logger.With("component", "restclient"),
	}, nil
}

// GetJSON sends a GET request and decodes the JSON response body into result.
func (c *Client) GetJSON(ctx context.Context, path string, result any) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(resp)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(result); err != nil {
		return fmt.Errorf("restclient: decode response: %w", err)
	}
	return nil
}

// GetBytes sends a GET request and returns the raw response body, along
// with the HTTP status code so callers can distinguish 304 Not Modified
// from 200 OK.
func (c *Client) GetBytes(ctx context.Context, path string) ([]byte, int, error) {
	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotModified {
		return nil, resp.StatusCode, errorFromResponse(resp)
	}

	var reader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, resp.StatusCode, fmt.Errorf("restclient: gzip decompress response: %w", err)
		}
		defer gr.Close()
		reader = gr
	}

	body, err := io.ReadAll(io.LimitReader(reader, maxResponseSize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("restclient: read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("restclient: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", userAgentPrefix+c.version)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("restclient: request %s: %w", path, err)
	}
	return resp, nil
}
