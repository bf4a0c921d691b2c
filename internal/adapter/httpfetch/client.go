package httpfetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
	"github.com/vertextoedge/audio-fetch-cache/internal/port"
)

// StatusError describes a non-2xx response
type StatusError struct {
	StatusCode int
	Status     string
}

// Error returns the error message
func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %s", e.Status)
}

// Config contains optional client configuration
type Config struct {
	UserAgent             string
	SkipTLSVerify         bool
	ResponseHeaderTimeout time.Duration
	MaxConnsPerHost       int
	BufferSize            int
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		UserAgent:             "audio-fetch-cache/1.0",
		ResponseHeaderTimeout: 30 * time.Second,
		MaxConnsPerHost:       8,
		BufferSize:            256 * 1024,
	}
}

// Client is the HTTP transport used for audio downloads
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// Ensure Client implements port.Transport
var _ port.Transport = (*Client)(nil)

// NewClient creates a new download client.
// The overall deadline comes from the request context, not the client.
func NewClient(cfg Config) *Client {
	defaults := DefaultConfig()
	if cfg.ResponseHeaderTimeout <= 0 {
		cfg.ResponseHeaderTimeout = defaults.ResponseHeaderTimeout
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = defaults.MaxConnsPerHost
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.SkipTLSVerify,
		},
		// Connection pooling
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,

		WriteBufferSize: cfg.BufferSize,
		ReadBufferSize:  cfg.BufferSize,

		ForceAttemptHTTP2: true,

		// Audio is already compressed
		DisableCompression: true,

		// Response header timeout (not total download timeout)
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   0, // No timeout for downloads
		},
		userAgent: cfg.UserAgent,
	}
}

// NewClientWithHTTP wraps an existing http.Client
func NewClientWithHTTP(hc *http.Client) *Client {
	return &Client{httpClient: hc, userAgent: DefaultConfig().UserAgent}
}

// Get issues a GET for rawURL and classifies failures
func (c *Client) Get(ctx context.Context, rawURL string) (*port.TransportResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, domain.NewFetchError(domain.KindInvalidContent, rawURL, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "audio/*, application/octet-stream;q=0.9, */*;q=0.1")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, rawURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, classifyStatus(rawURL, resp)
	}

	return &port.TransportResponse{
		StatusCode:    resp.StatusCode,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		Body:          resp.Body,
	}, nil
}

func classifyTransportError(ctx context.Context, rawURL string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return domain.NewFetchError(domain.KindTimeout, rawURL, err)
		}
		return domain.NewFetchError(domain.KindCancelled, rawURL, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewFetchError(domain.KindTimeout, rawURL, err)
	}
	return domain.NewFetchError(domain.KindNetwork, rawURL, err)
}

// classifyStatus maps an HTTP status to a fetch error kind.
// 408, 429 and 5xx are transient; 401 and 403 are permission failures;
// every other 4xx means the URL does not serve usable audio.
func classifyStatus(rawURL string, resp *http.Response) error {
	statusErr := &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return domain.NewFetchError(domain.KindPermission, rawURL, statusErr)
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return domain.NewFetchError(domain.KindNetwork, rawURL, domain.NewRetryableError(statusErr, retryAfter))
	default:
		return domain.NewFetchError(domain.KindInvalidContent, rawURL, statusErr)
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
