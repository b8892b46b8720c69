// Package client is the node RPC gateway. Every outbound call goes through a
// fixed-delay retry, an optional rate limiter, a tracing span and the request
// counters.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/decentium/decentium-go/internal/metrics"
	"github.com/decentium/decentium-go/internal/retry"
)

const instrumentationName = "github.com/decentium/decentium-go/internal/client"

// Node RPC paths.
const (
	pathGetInfo      = "/v1/chain/get_info"
	pathGetTableRows = "/v1/chain/get_table_rows"
	pathGetBlock     = "/v1/chain/get_block"
	pathGetABI       = "/v1/chain/get_abi"
)

// DefaultTimeout bounds a single HTTP attempt.
const DefaultTimeout = 30 * time.Second

// Config configures the gateway.
type Config struct {
	NodeURL string
	// Timeout applies to each attempt, not to the whole retried call.
	Timeout time.Duration
	Retry   retry.Policy
	// RateLimit is the number of requests per second. Zero disables limiting.
	RateLimit float64
	RateBurst int
	// Whitelist restricts the actions GetBlock returns to these accounts.
	// An empty whitelist keeps every action.
	Whitelist []string
}

// APIError is a non-2xx response from the node.
type APIError struct {
	Method     string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: node returned HTTP %d: %s", e.Method, e.StatusCode, e.Body)
}

// Client talks to a single node.
type Client struct {
	http      *resty.Client
	policy    retry.Policy
	limiter   *rate.Limiter
	whitelist map[string]struct{}
	tracer    trace.Tracer
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a gateway for cfg.NodeURL.
func New(cfg Config, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if cfg.NodeURL == "" {
		return nil, fmt.Errorf("node URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate limit must not be negative: %v", cfg.RateLimit)
	}
	if m == nil {
		m = metrics.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		http: resty.New().
			SetBaseURL(cfg.NodeURL).
			SetHeader("Content-Type", "application/json").
			SetTimeout(cfg.Timeout),
		policy:  cfg.Retry,
		tracer:  otel.Tracer(instrumentationName),
		metrics: m,
		logger:  logger.With("component", "rpc-gateway", "node", cfg.NodeURL),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if len(cfg.Whitelist) > 0 {
		c.whitelist = make(map[string]struct{}, len(cfg.Whitelist))
		for _, account := range cfg.Whitelist {
			c.whitelist[account] = struct{}{}
		}
	}
	return c, nil
}

// call POSTs body to path and returns the raw response body. The whole
// exchange is retried; the last failure is returned unchanged.
func (c *Client) call(ctx context.Context, method, path string, body any) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "node."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "eosio"),
			attribute.String("rpc.method", method),
		),
	)
	defer span.End()

	onRetry := func(attempt int, err error) {
		c.metrics.RPCRetries.WithLabelValues(method).Inc()
		c.logger.Warn("Request failed, retrying",
			"method", method,
			"attempt", attempt,
			"maxAttempts", c.policy.MaxAttempts,
			"delay", c.policy.Delay,
			"error", err,
		)
	}

	attempts := 0
	out, err := retry.Do(ctx, c.policy, onRetry, func(ctx context.Context) ([]byte, error) {
		attempts++
		b, err := c.attempt(ctx, method, path, body)
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.metrics.RPCRequests.WithLabelValues(method, status).Inc()
		return b, err
	})
	span.SetAttributes(attribute.Int("rpc.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out, nil
}

func (c *Client) attempt(ctx context.Context, method, path string, body any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if resp.IsError() {
		return nil, &APIError{Method: method, StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return resp.Body(), nil
}

// Info is the subset of get_info the client uses.
type Info struct {
	ChainID                  string `json:"chain_id"`
	HeadBlockNum             uint32 `json:"head_block_num"`
	LastIrreversibleBlockNum uint32 `json:"last_irreversible_block_num"`
	// EarliestAvailableBlockNum is zero on nodes that do not report it.
	EarliestAvailableBlockNum uint32 `json:"earliest_available_block_num"`
}

// GetInfo returns the node's chain head.
func (c *Client) GetInfo(ctx context.Context) (*Info, error) {
	b, err := c.call(ctx, "get_info", pathGetInfo, struct{}{})
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(b, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal get_info response: %w", err)
	}
	return &info, nil
}

func blockNumParam(num uint32) map[string]string {
	return map[string]string{"block_num_or_id": strconv.FormatUint(uint64(num), 10)}
}
