package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Common errors.
var (
	ErrNotFound         = errors.New("http: resource not found")
	ErrForbidden        = errors.New("http: access forbidden")
	ErrUnauthorized     = errors.New("http: unauthorized")
	ErrServerError      = errors.New("http: server error")
	ErrUnexpectedStatus = errors.New("http: unexpected status code")
)

// DefaultUserAgent identifies the mirror to the remote origins.
const DefaultUserAgent = "squire (https://github.com/oskarbraten/squire)"

// Options configures the HTTP client.
type Options struct {
	// UserAgent is sent with every request.
	// Default: DefaultUserAgent
	UserAgent string

	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 100
	MaxIdleConnsPerHost int

	// DialTimeout bounds establishing a connection.
	// Default: 30s
	DialTimeout time.Duration

	// ResponseHeaderTimeout bounds the wait for response headers once the
	// request is written.
	// Default: 60s
	ResponseHeaderTimeout time.Duration

	// Timeout for individual requests, including reading the body.
	// Zero means no timeout.
	Timeout time.Duration
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		UserAgent:             DefaultUserAgent,
		MaxIdleConnsPerHost:   100,
		DialTimeout:           30 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	}
}

// Response is the body of a successful GET.
type Response struct {
	Body          io.ReadCloser
	ContentLength int64
}

// Client issues single-attempt GET requests. Failed requests are never
// retried; callers decide what a failure means.
type Client struct {
	client *http.Client
	opts   Options
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts Options) *Client {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = 100
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 30 * time.Second
	}
	if opts.ResponseHeaderTimeout <= 0 {
		opts.ResponseHeaderTimeout = 60 * time.Second
	}

	dialer := &net.Dialer{
		Timeout:   opts.DialTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		MaxIdleConns:          opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		DisableCompression:    true, // archives must arrive byte-for-byte
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		opts: opts,
	}
}

// Get performs a GET request. The caller must close the response body.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	if err := checkStatusCode(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}

	return &Response{
		Body:          resp.Body,
		ContentLength: resp.ContentLength,
	}, nil
}

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code >= 500:
		return fmt.Errorf("%w: %d", ErrServerError, code)
	default:
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, code)
	}
}
