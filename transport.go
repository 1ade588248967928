package rosweb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Transport performs a single request against the bridge.
// Implementations must be safe for concurrent use; each Channel calls it from
// its own goroutine.
type Transport interface {
	// RoundTrip issues a GET for path and returns the response body.
	// A non-2xx answer is reported as a *StatusError.
	RoundTrip(ctx context.Context, path string) (string, error)
}

// maxBodySize bounds the response body; larger bodies fail with
// ErrResponseTooLarge.
const maxBodySize = 4 << 20

// HTTPTransport talks to a bridge over plain HTTP GETs.
type HTTPTransport struct {
	base   *url.URL
	client *http.Client
}

// RoundTrip issues a GET for base+path.
func (h *HTTPTransport) RoundTrip(ctx context.Context, path string) (string, error) {
	u := *h.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawPath = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if len(body) > maxBodySize {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", ErrResponseTooLarge, path, maxBodySize)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Code: resp.StatusCode, Path: path}
	}

	return string(body), nil
}

// NewHTTPTransport creates a transport for the bridge at baseURL. A nil client
// uses http.DefaultClient.
func NewHTTPTransport(baseURL string, client *http.Client) (*HTTPTransport, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse bridge url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("bridge url %q must be absolute", baseURL)
	}

	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPTransport{base: u, client: client}, nil
}
