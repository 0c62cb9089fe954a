// Package registryhttp implements the registry client port over the Docker
// Registry HTTP API v2.
package registryhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/cenkalti/backoff/v4"

	"github.com/bnema/courseimages/internal/adapters/dto"
	"github.com/bnema/courseimages/internal/adapters/out/telemetry"
	"github.com/bnema/courseimages/internal/boundaries/out"
	"github.com/bnema/courseimages/internal/domain"
	"github.com/bnema/courseimages/pkg/validation"
)

const (
	// DefaultTimeout bounds a single HTTP round trip, body included.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRetries is how many times an idempotent GET is retried.
	DefaultMaxRetries = 2

	defaultRetryInterval = 200 * time.Millisecond
	catalogPageSize      = 100

	maxErrorBody    = 4 << 10
	maxJSONBytes    = 4 << 20
	maxManifestSize = 4 << 20
	maxConfigSize   = 16 << 20

	userAgent = "courseimages/1.0"
)

// Config holds the registry connection settings.
type Config struct {
	Host          string
	Username      string
	Password      string
	Insecure      bool
	Timeout       time.Duration
	MaxRetries    int
	VerifyDigests bool
}

// Ensure Client implements out.RegistryClient.
var _ out.RegistryClient = (*Client)(nil)

// Client talks to one registry. It is safe for concurrent use; the
// underlying http.Client is created once and released by Close.
type Client struct {
	cfg           Config
	base          *url.URL
	http          *http.Client
	log           zerowrap.Logger
	metrics       *telemetry.Metrics
	throttle      out.RequestThrottle
	retryInterval time.Duration
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithMetrics records request, mount and delete metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithThrottle paces every request through th, keyed by host.
func WithThrottle(th out.RequestThrottle) Option {
	return func(c *Client) {
		c.throttle = th
	}
}

// WithRetryInterval sets the initial backoff between GET retries.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) {
		c.retryInterval = d
	}
}

// NewClient creates a registry client for cfg.Host.
func NewClient(cfg Config, log zerowrap.Logger, opts ...Option) (*Client, error) {
	if err := validation.ValidateRegistryHost(cfg.Host); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	scheme := "https"
	if cfg.Insecure {
		scheme = "http"
	}

	c := &Client{
		cfg:           cfg,
		base:          &url.URL{Scheme: scheme, Host: cfg.Host, Path: "/v2/"},
		log:           log,
		retryInterval: defaultRetryInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{}
	}

	log.Debug().
		Str(zerowrap.FieldLayer, "adapter").
		Str(zerowrap.FieldAdapter, "registryhttp").
		Str(zerowrap.FieldHost, cfg.Host).
		Bool("insecure", cfg.Insecure).
		Bool("verify_digests", cfg.VerifyDigests).
		Msg("registry client initialized")

	return c, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// BaseURL returns the API root, e.g. https://registry.example.com/v2/.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Ping checks that the host speaks the v2 API and accepts the credentials.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, request{
		op:     "ping",
		method: http.MethodGet,
		url:    c.endpoint("", nil),
		accept: domain.MediaTypeJSON,
	}, maxErrorBody, http.StatusOK)
	return err
}

type request struct {
	op          string
	method      string
	url         *url.URL
	accept      string
	contentType string
	body        []byte
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// endpoint builds an absolute URL for a path relative to /v2/.
func (c *Client) endpoint(path string, query url.Values) *url.URL {
	u := *c.base
	u.Path = c.base.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return &u
}

// resolve turns a Location or Link target into an absolute URL on the
// registry host. Targets on other hosts are refused so credentials never
// leave the registry.
func (c *Client) resolve(ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	abs := c.base.ResolveReference(u)
	if abs.Host != c.base.Host {
		return nil, fmt.Errorf("refusing to follow %q outside of %s", ref, c.base.Host)
	}
	return abs, nil
}

// do sends req and returns the response when its status is one of ok.
// GET requests are retried on network errors, 429 and 5xx.
func (c *Client) do(ctx context.Context, req request, maxBody int64, ok ...int) (*response, error) {
	if req.method != http.MethodGet {
		return c.attempt(ctx, req, maxBody, ok)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	policy.MaxElapsedTime = 0

	var resp *response
	operation := func() error {
		var err error
		resp, err = c.attempt(ctx, req, maxBody, ok)
		if err == nil {
			return nil
		}
		if !retryable(ctx, err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.log.Warn().
			Err(err).
			Str(zerowrap.FieldAdapter, "registryhttp").
			Str(zerowrap.FieldAction, req.op).
			Dur("retry_in", wait).
			Msg("registry request failed, retrying")
	}

	policyWithLimit := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.cfg.MaxRetries)), ctx)
	if err := backoff.RetryNotify(operation, policyWithLimit, notify); err != nil {
		return nil, err
	}
	return resp, nil
}

// attempt performs a single round trip bounded by the per-request timeout.
func (c *Client) attempt(ctx context.Context, req request, maxBody int64, ok []int) (*response, error) {
	if c.throttle != nil {
		if err := c.throttle.Wait(ctx, c.base.Host); err != nil {
			return nil, fmt.Errorf("%s: throttled: %w", req.op, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", req.op, err)
	}
	httpReq.Header.Set("User-Agent", userAgent)
	if req.accept != "" {
		httpReq.Header.Set("Accept", req.accept)
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if c.cfg.Username != "" {
		httpReq.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		c.observe(ctx, req, 0, start)
		return nil, &domain.TransportError{Op: req.op, Method: req.method, URL: req.url.String(), Err: err}
	}
	defer httpResp.Body.Close()

	c.observe(ctx, req, httpResp.StatusCode, start)

	if !statusIn(httpResp.StatusCode, ok) {
		raw, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		return nil, &domain.TransportError{
			Op:         req.op,
			Method:     req.method,
			URL:        req.url.String(),
			StatusCode: httpResp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
			Codes:      errorCodes(raw),
		}
	}

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBody+1))
	if err != nil {
		return nil, &domain.TransportError{
			Op:         req.op,
			Method:     req.method,
			URL:        req.url.String(),
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("read body: %w", err),
		}
	}
	if int64(len(data)) > maxBody {
		return nil, &domain.MalformedResponseError{
			What: req.op + " response",
			Err:  fmt.Errorf("body exceeds %d bytes", maxBody),
		}
	}

	return &response{status: httpResp.StatusCode, header: httpResp.Header.Clone(), body: data}, nil
}

func (c *Client) observe(ctx context.Context, req request, status int, start time.Time) {
	elapsed := time.Since(start)
	c.metrics.RecordRequest(ctx, req.op, req.method, status, elapsed)
	c.log.Debug().
		Str(zerowrap.FieldLayer, "adapter").
		Str(zerowrap.FieldAdapter, "registryhttp").
		Str(zerowrap.FieldAction, req.op).
		Str(zerowrap.FieldMethod, req.method).
		Str(zerowrap.FieldPath, req.url.Path).
		Int(zerowrap.FieldStatus, status).
		Dur(zerowrap.FieldDuration, elapsed).
		Msg("registry request")
}

// retryable reports whether a failed GET is worth another attempt.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var te *domain.TransportError
	if !errors.As(err, &te) {
		return false
	}
	if te.StatusCode == 0 {
		return true
	}
	return te.StatusCode == http.StatusTooManyRequests || te.StatusCode >= http.StatusInternalServerError
}

func statusIn(status int, ok []int) bool {
	for _, s := range ok {
		if status == s {
			return true
		}
	}
	return false
}

// errorCodes extracts the codes of a registry JSON error body.
func errorCodes(body []byte) []string {
	var resp dto.RegistryErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	codes := make([]string, 0, len(resp.Errors))
	for _, e := range resp.Errors {
		if e.Code != "" {
			codes = append(codes, e.Code)
		}
	}
	if len(codes) == 0 {
		return nil
	}
	return codes
}

// nextPage returns the target of a Link: <...>; rel="next" header, or nil.
func (c *Client) nextPage(header http.Header) (*url.URL, error) {
	for _, link := range header.Values("Link") {
		for _, part := range strings.Split(link, ",") {
			target, params, found := strings.Cut(strings.TrimSpace(part), ";")
			if !found || !strings.Contains(strings.ReplaceAll(params, " ", ""), `rel="next"`) {
				continue
			}
			target = strings.TrimSpace(target)
			target = strings.TrimPrefix(target, "<")
			target = strings.TrimSuffix(target, ">")
			u, err := c.resolve(target)
			if err != nil {
				return nil, &domain.MalformedResponseError{What: "pagination link", Err: err}
			}
			return u, nil
		}
	}
	return nil, nil
}

func validateName(name string) error {
	if err := validation.ValidateRepositoryName(name); err != nil {
		return fmt.Errorf("%w %q: %v", domain.ErrInvalidCoordinate, name, err)
	}
	return nil
}

func validateReference(name, reference string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validation.ValidateReference(reference); err != nil {
		return fmt.Errorf("%w %s:%s: %v", domain.ErrInvalidCoordinate, name, reference, err)
	}
	return nil
}

func validateDigest(name, dgst string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validation.ValidateDigest(dgst); err != nil {
		return fmt.Errorf("%w %q: %v", domain.ErrInvalidDigest, dgst, err)
	}
	return nil
}
