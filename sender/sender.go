// Package sender posts a single signed message to a collector and reports
// the HTTP status it answered with.
package sender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"hamustro/builder"
	"hamustro/codec"
	"hamustro/metrics"
	"hamustro/models"
	"hamustro/signature"
)

const DefaultTimeout = 30 * time.Second

// ErrNetworkFailure wraps every error that prevented a response from being
// received. A non-2xx status is not a failure.
var ErrNetworkFailure = errors.New("network failure")

type Client struct {
	URL        string
	Secret     string
	Version    models.Version
	Format     codec.Format
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
}

type Option func(*Client)

func WithVersion(v models.Version) Option {
	return func(c *Client) { c.Version = v }
}

func WithFormat(f codec.Format) Option {
	return func(c *Client) { c.Format = f }
}

// WithTimeout replaces the HTTP client with one bounded by d.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.HTTPClient = &http.Client{Timeout: d} }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.Metrics = m }
}

// New returns a V2 protobuf client with a DefaultTimeout bound unless the
// options say otherwise.
func New(url, secret string, opts ...Option) (*Client, error) {
	c := &Client{
		URL:        url,
		Secret:     secret,
		Version:    models.V2,
		Format:     codec.FormatProtobuf,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}

	if url == "" {
		return nil, errors.New("sender: empty collector url")
	}
	if _, err := signature.New(c.Version, c.Secret); err != nil {
		return nil, err
	}
	if err := codec.Supports(c.Version, c.Format); err != nil {
		return nil, err
	}
	return c, nil
}

// Send serializes msg, signs it with msg.Time and posts it once. The response
// body is drained and discarded.
func (c *Client) Send(ctx context.Context, msg *models.Message) (int, error) {
	body, err := codec.Marshal(msg.Collection, c.Format)
	if err != nil {
		return 0, err
	}
	sig, err := signature.Sign(c.Version, body, msg.Time, c.Secret)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request for %s: %w", c.URL, err)
	}
	req.Header.Set("X-Hamustro-Time", msg.Time)
	req.Header.Set("X-Hamustro-Signature", sig)
	req.Header.Set("Content-Type", c.Format.ContentType())

	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		c.Metrics.ObserveResponse(0, time.Since(start))
		return 0, fmt.Errorf("%w: POST %s: %w", ErrNetworkFailure, c.URL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	c.Metrics.ObserveResponse(resp.StatusCode, time.Since(start))
	log.Printf("Sender: POST %s (%s, %s, %d bytes) -> %d", c.URL, c.Version, c.Format, len(body), resp.StatusCode)
	return resp.StatusCode, nil
}

// SendOne posts one freshly built single-payload V2 message, timestamped
// now, and returns the collector's status code.
func SendOne(ctx context.Context, url, secret string, format codec.Format) (int, error) {
	c, err := New(url, secret, WithFormat(format))
	if err != nil {
		return 0, err
	}
	return c.Send(ctx, builder.New(models.V2).Build(false))
}
