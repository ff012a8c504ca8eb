package identityapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

const (
	// SessionPath is appended to the base URL for username resolution.
	SessionPath = "/v1/session"

	// DefaultTimeout bounds the single resolution attempt.
	DefaultTimeout = time.Second

	maxResponseBytes = 64 << 10
)

// Request is the body posted to the identity API.
type Request struct {
	EPPN string `json:"eppn"`
	Mail string `json:"mail"`
	CN   string `json:"cn"`
}

// Resolver resolves federation attributes to a canonical username.
type Resolver interface {
	ResolveUsername(ctx context.Context, req Request) (string, error)
}

// Client talks to the CENDARI Data API session endpoint. It makes exactly
// one attempt per call.
type Client struct {
	http     *retryablehttp.Client
	endpoint string
	timeout  time.Duration
	schema   *jsonschema.Schema
	agent    string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(agent string) Option {
	return func(c *Client) {
		c.agent = agent
	}
}

// WithTransport replaces the HTTP transport, e.g. for TLS settings.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http.HTTPClient.Transport = rt
	}
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid identity api url %q", baseURL)
	}

	schema, err := compileResponseSchema()
	if err != nil {
		return nil, err
	}

	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = 0
	rc.CheckRetry = func(_ context.Context, _ *http.Response, err error) (bool, error) {
		return false, err
	}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{
		http:     rc,
		endpoint: strings.TrimRight(u.String(), "/") + SessionPath,
		timeout:  DefaultTimeout,
		schema:   schema,
		agent:    "cendari-auth",
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.HTTPClient.Timeout = c.timeout
	return c, nil
}

// Endpoint returns the full resolution URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// ResolveUsername posts the attributes and returns the username from a
// 200 response. Every failure is a *ResolutionError.
func (c *Client) ResolveUsername(ctx context.Context, in Request) (string, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("encode identity request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create identity request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.agent != "" {
		req.Header.Set("User-Agent", c.agent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &ResolutionError{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return "", &ResolutionError{Kind: KindStatus, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		// The headers arrived but the body did not.
		return "", &ResolutionError{Kind: KindNetwork, Err: fmt.Errorf("read response body: %w", err)}
	}

	return c.parseUsername(body)
}

func (c *Client) parseUsername(body []byte) (string, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return "", &ResolutionError{Kind: KindMalformed, StatusCode: http.StatusOK, Err: fmt.Errorf("decode response: %w", err)}
	}
	if err := c.schema.Validate(inst); err != nil {
		return "", &ResolutionError{Kind: KindMalformed, StatusCode: http.StatusOK, Err: err}
	}

	obj := inst.(map[string]any)
	switch v := obj["username"].(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	default:
		return "", &ResolutionError{Kind: KindMalformed, StatusCode: http.StatusOK, Err: fmt.Errorf("username has type %T", v)}
	}
}
