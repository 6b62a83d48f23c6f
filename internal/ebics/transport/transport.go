// Package transport posts EBICS envelopes to an upstream bank host and
// returns the raw response body, accepting either text/xml or text/plain
// on the wire.
package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/paynet/ebics-gateway/pkg/errors"
)

const defaultTimeout = 60 * time.Second

// Client posts signed/unsigned EBICS envelopes to a single bank host URL.
type Client struct {
	http *resty.Client
	url  string
}

// New builds a Client targeting url, with a hard per-call timeout
// (default 60s). Outbound requests carry an otelhttp span, so a request to
// a slow or unreachable bank host shows up on whatever trace it was issued
// under.
func New(url string) *Client {
	restyClient := resty.New().
		SetTimeout(defaultTimeout).
		SetHeader("Content-Type", "text/xml").
		SetTransport(otelhttp.NewTransport(http.DefaultTransport))

	return &Client{http: restyClient, url: url}
}

// Post sends body as the EBICS request envelope and returns the response
// body. A non-2xx HTTP status is surfaced as a TransportError; the caller
// is responsible for interpreting the EBICS-level return codes inside a
// 200 response.
func (c *Client) Post(ctx context.Context, body []byte) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(c.url)
	if err != nil {
		return nil, errors.Transport(err, "ebics: request to %s failed", c.url)
	}
	if resp.IsError() {
		return nil, errors.Transport(nil, "ebics: %s returned HTTP %d", c.url, resp.StatusCode())
	}
	return resp.Body(), nil
}
