package providers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/time/rate"

	"github.com/apkupdater/apkupdaterd/api"
)

// ClientConfig holds the transport settings shared by all sources.
type ClientConfig struct {
	UserAgent         string
	RetryMax          int
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client is the HTTP transport shared by all sources.
//
// Requests go through a retrying, gzip-aware http.Client. Each source gets its own rate limiter.
type Client struct {
	http   *http.Client
	resty  *resty.Client
	config ClientConfig

	limiters   map[api.SourceID]*rate.Limiter
	limitersMu sync.Mutex
}

// NewClient sets up a new shared transport.
func NewClient(config ClientConfig) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = config.RetryMax
	retryClient.RetryWaitMin = time.Second
	retryClient.RetryWaitMax = 30 * time.Second
	retryClient.Logger = slog.Default()

	// Hand the last response back to the caller so status codes can be interpreted per source.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.HTTPClient.Transport = gzhttp.Transport(retryClient.HTTPClient.Transport)

	httpClient := retryClient.StandardClient()
	if config.Timeout > 0 {
		httpClient.Timeout = config.Timeout
	}

	restyClient := resty.NewWithClient(httpClient)
	if config.UserAgent != "" {
		restyClient.SetHeader("User-Agent", config.UserAgent)
	}

	return &Client{
		http:     httpClient,
		resty:    restyClient,
		config:   config,
		limiters: map[api.SourceID]*rate.Limiter{},
	}
}

// HTTPClient returns the underlying http.Client.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// UserAgent returns the configured user agent.
func (c *Client) UserAgent() string {
	return c.config.UserAgent
}

// Wait blocks until the source's rate limiter allows one more request.
func (c *Client) Wait(ctx context.Context, source api.SourceID) error {
	c.limitersMu.Lock()

	limiter, ok := c.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(rate.Inf, 0)
		if c.config.RequestsPerSecond > 0 {
			limiter = rate.NewLimiter(rate.Limit(c.config.RequestsPerSecond), max(1, int(c.config.RequestsPerSecond)))
		}

		c.limiters[source] = limiter
	}

	c.limitersMu.Unlock()

	err := limiter.Wait(ctx)
	if err != nil {
		return fmt.Errorf("rate limit error: %w", err)
	}

	return nil
}

// Request returns a new request for the source, once its rate limiter allows it.
func (c *Client) Request(ctx context.Context, source api.SourceID) (*resty.Request, error) {
	err := c.Wait(ctx, source)
	if err != nil {
		return nil, err
	}

	return c.resty.R().SetContext(ctx), nil
}
