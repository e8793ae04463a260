package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/solsift/service/metrics"
)

// JSON-RPC application error code returned by Solana nodes for
// transactions whose version the requested encoding cannot represent.
const unsupportedTxVersionCode = -32015

// requestID is the fixed JSON-RPC request id used for every call.
const requestID = 1

var (
	// ErrNoResult indicates the call produced no usable result. Callers
	// must treat this as "skip this item and continue", never as a fatal
	// condition.
	ErrNoResult = errors.New("rpc: no result")

	// ErrUnsupportedVersion indicates the node rejected the transaction
	// version (code -32015). This is a permanent per-call skip: it is
	// returned immediately without consuming a retry attempt, and callers
	// must treat it identically to "not found".
	ErrUnsupportedVersion = errors.New("rpc: unsupported transaction version")
)

// request is the JSON-RPC 2.0 request envelope.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// rpcError is the JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// envelope is the JSON-RPC 2.0 response envelope.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// Response carries the decoded result of a successful call plus the raw
// response body for diagnostic inspection. Raw is a per-call value, never
// shared state on the client, so concurrent callers cannot race on it.
type Response struct {
	Result json.RawMessage
	Raw    []byte
}

// Client issues JSON-RPC 2.0 calls to a Solana node with bounded retry
// and exponential backoff on transient failures. It is safe for
// concurrent use; backoff sleeps block only the calling goroutine.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics

	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration

	// sleep is swapped out in tests to observe backoff timing.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new JSON-RPC client for the given endpoint.
// If m is nil, no metrics are recorded.
func NewClient(endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:      logger,
		metrics:     m,
		maxAttempts: 3, // initial attempt plus two retries
		baseBackoff: 1 * time.Second,
		maxBackoff:  32 * time.Second,
		sleep:       sleepCtx,
	}
}

// sleepCtx blocks for the given delay or returns early when the context
// is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// nextBackoff doubles the previous delay, capped at max. Threading the
// delay through the retry loop as a value keeps the loop free of shared
// mutable backoff state.
func nextBackoff(prev, max time.Duration) time.Duration {
	next := prev * 2
	if next > max {
		next = max
	}
	return next
}

// Call issues a JSON-RPC call and returns the decoded result.
//
// HTTP 429 responses and transport-level failures are retried with
// exponential backoff (1s doubling, capped at 32s), with the delay taken
// before the retried attempt. An application error with the unsupported
// transaction version code returns ErrUnsupportedVersion immediately.
// Any other non-200 status or unrecognized application error is logged
// and returns ErrNoResult without further retries, as does exhausting
// the retry budget.
func (c *Client) Call(ctx context.Context, method string, params ...any) (*Response, error) {
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      requestID,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	delay := c.baseBackoff

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		// Backoff happens before the retried attempt, not after a failure,
		// so a success never pays a backoff penalty.
		if attempt > 1 {
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay = nextBackoff(delay, c.maxBackoff)
		}

		resp, raw, err := c.post(ctx, method, body)
		if err != nil {
			c.logger.WarnContext(ctx, "rpc request failed",
				"method", method,
				"attempt", attempt,
				"max_attempts", c.maxAttempts,
				"error", err,
			)
			if c.metrics != nil {
				c.metrics.RecordRPCRetry(method, "transport")
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			c.logger.WarnContext(ctx, "rpc rate limit exceeded",
				"method", method,
				"attempt", attempt,
				"max_attempts", c.maxAttempts,
			)
			if c.metrics != nil {
				c.metrics.RecordRateLimitHit(c.endpoint)
				c.metrics.RecordRPCRetry(method, "rate_limit")
			}
			continue
		}

		var env envelope
		decodeErr := json.Unmarshal(raw, &env)

		// An unsupported-version error is a permanent skip for this call:
		// no retry is consumed and the caller treats it like "not found".
		if decodeErr == nil && env.Error != nil && env.Error.Code == unsupportedTxVersionCode {
			c.logger.DebugContext(ctx, "transaction version not supported, skipping",
				"method", method,
			)
			return nil, ErrUnsupportedVersion
		}

		if resp.StatusCode == http.StatusOK && decodeErr == nil && env.Error == nil {
			return &Response{Result: env.Result, Raw: raw}, nil
		}

		// Anything else is unrecoverable for this call: log it with the
		// raw body for diagnosis and give up without retrying.
		c.logger.WarnContext(ctx, "rpc returned unexpected response",
			"method", method,
			"status", resp.StatusCode,
			"body", truncate(raw, 512),
			"decode_error", decodeErr,
		)
		return nil, ErrNoResult
	}

	c.logger.WarnContext(ctx, "rpc retry limit exceeded",
		"method", method,
		"max_attempts", c.maxAttempts,
	)
	return nil, ErrNoResult
}

// post sends one HTTP request and returns the response and its body.
func (c *Client) post(ctx context.Context, method string, body []byte) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	} else if resp.StatusCode != http.StatusOK {
		status = fmt.Sprintf("http_%d", resp.StatusCode)
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall(method, status, c.endpoint, duration)
	}

	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	return resp, raw, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
