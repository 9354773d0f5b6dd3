// Package monitor downloads statistics from storage node monitor endpoints.
package monitor

import (
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/clustereye/collector/internal/config"
)

// monitorCategories selects the stat categories the collector consumes
const monitorCategories = 80

// Client fetches monitor stat documents over HTTP. Responses are requested
// deflate-compressed; decompression happens transparently.
type Client struct {
	httpClient *fasthttp.Client
	port       int
	timeout    time.Duration
}

// NewClient creates a monitor client from collector configuration
func NewClient(cfg config.CollectorConfig) *Client {
	return &Client{
		httpClient: &fasthttp.Client{
			MaxConnsPerHost: 4,
			ReadTimeout:     cfg.WaitTimeout,
			WriteTimeout:    cfg.WaitTimeout,
		},
		port:    cfg.MonitorPort,
		timeout: cfg.WaitTimeout,
	}
}

// Fetch downloads the monitor stat document from one node. The returned
// buffer is owned by the caller.
func (c *Client) Fetch(host string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("http://%s:%d/?categories=%d", host, c.port, monitorCategories))
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAcceptEncoding, "deflate")

	if err := c.httpClient.DoTimeout(req, resp, c.timeout); err != nil {
		return nil, fmt.Errorf("stat download from %s: %w", host, err)
	}

	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return nil, fmt.Errorf("stat download from %s: unexpected status %d", host, code)
	}

	var body []byte
	var err error
	if string(resp.Header.ContentEncoding()) == "deflate" {
		body, err = resp.BodyInflate()
		if err != nil {
			return nil, fmt.Errorf("stat download from %s: inflate: %w", host, err)
		}
	} else {
		body = resp.Body()
	}

	return append([]byte(nil), body...), nil
}
