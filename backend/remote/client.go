// Package remote implements the backend for a hosted vector-index service
// reached over HTTP/JSON.
//
// The Client speaks the wire protocol defined in this package (also served
// by package server): every call carries a request id, gets a per-attempt
// timeout and is retried with exponential backoff and full jitter on
// network failures, 429 and 5xx responses. Authentication failures and
// other 4xx responses are returned immediately.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/time/rate"

	"github.com/hupe1980/vecsearch/backend"
	"github.com/hupe1980/vecsearch/distance"
)

// Options configures the Client and the Backend built on it.
type Options struct {
	// APIKey is sent in the Api-Key header when non-empty.
	APIKey string

	// Timeout bounds a single attempt.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseBackoff and MaxBackoff bound the exponential backoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// BatchSize is the number of vectors per upsert or delete request.
	BatchSize int

	// Concurrency bounds the upsert requests in flight.
	Concurrency int

	// RequestsPerSecond limits the request rate (0 disables the limit).
	RequestsPerSecond float64

	// Gzip compresses request bodies.
	Gzip bool

	// HTTPClient overrides the HTTP client.
	HTTPClient *http.Client

	// Logger receives request logs. Defaults to a discarding logger.
	Logger *slog.Logger
}

// DefaultOptions contains the default client configuration.
var DefaultOptions = Options{
	Timeout:     10 * time.Second,
	MaxRetries:  3,
	BaseBackoff: 100 * time.Millisecond,
	MaxBackoff:  2 * time.Second,
	BatchSize:   100,
	Concurrency: 4,
}

// Client is a low-level client for the remote vector-index service.
// It is safe for concurrent use.
type Client struct {
	baseURL string
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, optFns ...func(o *Options)) (*Client, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if baseURL == "" {
		return nil, errors.New("remote: base url must not be empty")
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions.BatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = DefaultOptions.BaseBackoff
	}
	if opts.MaxBackoff < opts.BaseBackoff {
		opts.MaxBackoff = opts.BaseBackoff
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		opts:    opts,
		http:    opts.HTTPClient,
		logger:  opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	c.logger = c.logger.With("backend", "remote")
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), max(1, int(opts.RequestsPerSecond)))
	}
	return c, nil
}

// CreateIndex creates an index.
func (c *Client) CreateIndex(ctx context.Context, name string, dimension int, metric distance.Metric) (IndexDescription, error) {
	var desc IndexDescription
	req := CreateIndexRequest{Name: name, Dimension: dimension, Metric: metric}
	err := c.do(ctx, http.MethodPost, indexesPath(), req, &desc)
	return desc, err
}

// DescribeIndex returns the description of an index.
func (c *Client) DescribeIndex(ctx context.Context, name string) (IndexDescription, error) {
	var desc IndexDescription
	err := c.do(ctx, http.MethodGet, indexPath(name), nil, &desc)
	return desc, err
}

// Upsert sends one upsert request.
func (c *Client) Upsert(ctx context.Context, name string, vectors []Vector) (UpsertResponse, error) {
	var resp UpsertResponse
	err := c.do(ctx, http.MethodPost, upsertPath(name), UpsertRequest{Vectors: vectors}, &resp)
	return resp, err
}

// Query sends one query request.
func (c *Client) Query(ctx context.Context, name string, req QueryRequest) (QueryResponse, error) {
	var resp QueryResponse
	err := c.do(ctx, http.MethodPost, queryPath(name), req, &resp)
	return resp, err
}

// Delete sends one delete request.
func (c *Client) Delete(ctx context.Context, name string, ids []string) error {
	return c.do(ctx, http.MethodPost, deletePath(name), DeleteRequest{IDs: ids}, nil)
}

// CloseIdleConnections closes idle keep-alive connections.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

// do runs one call under the retry policy. Retries are safe because every
// call of the protocol is idempotent.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	body, err := c.encode(in)
	if err != nil {
		return err
	}

	requestID := uuid.NewString()
	logger := c.logger.With("method", method, "path", path, "request_id", requestID)

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		start := time.Now()
		err := c.attempt(ctx, method, path, requestID, body, out)
		if err == nil {
			logger.DebugContext(ctx, "request completed", "attempt", attempt+1, "duration", time.Since(start))
			return nil
		}

		if !isRetryable(ctx, err) {
			return err
		}
		if attempt >= c.opts.MaxRetries {
			logger.WarnContext(ctx, "request failed, retries exhausted", "attempts", attempt+1, "error", err)
			return fmt.Errorf("%w: %s %s after %d attempts: %w", backend.ErrUnavailable, method, path, attempt+1, err)
		}

		wait := c.backoff(attempt)
		logger.DebugContext(ctx, "request failed, retrying", "attempt", attempt+1, "backoff", wait, "error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// backoff returns a full-jitter delay for the given retry attempt.
func (c *Client) backoff(attempt int) time.Duration {
	ceiling := c.opts.BaseBackoff << min(attempt, 30)
	if ceiling <= 0 || ceiling > c.opts.MaxBackoff {
		ceiling = c.opts.MaxBackoff
	}
	return rand.N(ceiling) + 1
}

func (c *Client) attempt(ctx context.Context, method, path, requestID string, body []byte, out any) error {
	attemptCtx := ctx
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		if c.opts.Gzip {
			req.Header.Set("Content-Encoding", "gzip")
		}
	}
	if c.opts.APIKey != "" {
		req.Header.Set(HeaderAPIKey, c.opts.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &transportError{err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &transportError{err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) encode(in any) ([]byte, error) {
	if in == nil {
		return nil, nil
	}

	var buf bytes.Buffer
	if !c.opts.Gzip {
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return nil, fmt.Errorf("remote: encode request: %w", err)
		}
		return buf.Bytes(), nil
	}

	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(in); err != nil {
		return nil, fmt.Errorf("remote: encode request: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("remote: compress request: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body ErrorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err == nil && body.Code != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
		apiErr.Expected = body.Expected
		apiErr.Actual = body.Actual
	} else {
		apiErr.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_"))
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

// transportError is a failure below HTTP: connection, timeout, truncated body.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return "remote transport: " + e.err.Error() }

func (e *transportError) Unwrap() error { return e.err }

func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var te *transportError
	if errors.As(err, &te) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}
