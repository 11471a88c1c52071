// Package fetch retrieves NFC-e consultation pages over HTTP.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html/charset"

	"github.com/rezonia/nfce-parser/internal/model"
)

const (
	// DefaultTimeout bounds a single page fetch
	DefaultTimeout = 15 * time.Second
	// DefaultMaxBodySize caps the bytes read from a portal response
	DefaultMaxBodySize int64 = 5 << 20

	defaultUserAgent = "nfce-parser/1.0"
)

// Client fetches pages with a bounded timeout and body size. It is safe for
// concurrent use.
type Client struct {
	httpClient  *http.Client
	maxBodySize int64
	userAgent   string
}

// Option configures a Client
type Option func(*Client)

// WithTimeout sets the whole-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithMaxBodySize sets the response size limit in bytes
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		c.maxBodySize = n
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUserAgent sets the User-Agent header sent to portals
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a fetch client
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		maxBodySize: DefaultMaxBodySize,
		userAgent:   defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the configured request timeout
func (c *Client) Timeout() time.Duration {
	return c.httpClient.Timeout
}

// Fetch downloads the page at rawURL and returns its body as text. Every
// failure is reported as a *model.InputError of kind fetch.
func (c *Client) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", model.NewFetchError(rawURL, 0, "invalid url, expected http or https", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", model.NewFetchError(rawURL, 0, "failed to build request", err)
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", model.NewFetchError(rawURL, 0, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain a little so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", model.NewFetchError(rawURL, resp.StatusCode, fmt.Sprintf("unexpected status %s", resp.Status), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return "", model.NewFetchError(rawURL, resp.StatusCode, "failed to read body", err)
	}
	if int64(len(body)) > c.maxBodySize {
		return "", model.NewFetchError(rawURL, resp.StatusCode,
			fmt.Sprintf("body exceeds %d bytes", c.maxBodySize), errBodyTooLarge)
	}
	text, err := decodeBody(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", model.NewFetchError(rawURL, resp.StatusCode, "failed to decode body", err)
	}
	return text, nil
}

// decodeBody converts the page to UTF-8 using the charset declared in the
// Content-Type header or a <meta> tag. Undeclared UTF-8 is kept as is.
func decodeBody(body []byte, contentType string) (string, error) {
	if _, name, certain := charset.DetermineEncoding(body, contentType); name == "utf-8" || (!certain && utf8.Valid(body)) {
		return string(body), nil
	}
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return "", err
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

var errBodyTooLarge = errors.New("response body too large")
