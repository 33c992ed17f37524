package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"manus/internal/config"

	"github.com/openai/openai-go/v3/responses"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// Default circuit breaker settings.
const (
	defaultMaxFailures uint32        = 5
	defaultTimeout     time.Duration = 30 * time.Second
	defaultInterval    time.Duration = 60 * time.Second
)

// Client is the LLM client for one run. It is registered under a runtime
// key and guards the backend with a circuit breaker and an optional rate
// limit.
type Client struct {
	key     string
	cfg     config.LLMConfig
	inner   Provider
	breaker *gobreaker.CircuitBreaker[*responses.Response]
	limiter *rate.Limiter
}

type Option func(*options)

type options struct {
	breaker    config.BreakerConfig
	httpClient *http.Client
	provider   Provider
}

// WithBreaker overrides the circuit breaker settings. Zero fields keep the
// defaults.
func WithBreaker(cfg config.BreakerConfig) Option {
	return func(o *options) { o.breaker = cfg }
}

// WithHTTPClient sets the HTTP client used by the backend.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// withProvider replaces the backend; used by tests.
func withProvider(p Provider) Option {
	return func(o *options) { o.provider = p }
}

// New builds the client registered under key in configs, falling back to the
// default entry when key is absent.
func New(key string, configs map[string]config.LLMConfig, opts ...Option) (*Client, error) {
	cfg, ok := configs[key]
	if !ok {
		cfg, ok = configs[config.DefaultProfile]
	}
	if !ok {
		return nil, fmt.Errorf("llm config %q not found and no %q entry", key, config.DefaultProfile)
	}
	if err := config.ValidateLLM(cfg); err != nil {
		return nil, fmt.Errorf("llm config %q: %w", key, err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	inner := o.provider
	if inner == nil {
		inner = NewOpenAI(cfg, o.httpClient)
	}

	c := &Client{
		key:     key,
		cfg:     cfg,
		inner:   inner,
		breaker: newBreaker(key, o.breaker),
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}
	return c, nil
}

func newBreaker(key string, cfg config.BreakerConfig) *gobreaker.CircuitBreaker[*responses.Response] {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultInterval
	}

	return gobreaker.NewCircuitBreaker[*responses.Response](gobreaker.Settings{
		Name:        "llm:" + key,
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		// A cancelled request says nothing about the backend.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// Key returns the runtime key the client was built for.
func (c *Client) Key() string { return c.key }

// Config returns the resolved profile.
func (c *Client) Config() config.LLMConfig { return c.cfg }

func (c *Client) Model() string { return c.cfg.Model }

func (c *Client) ChatStream(ctx context.Context, input []responses.ResponseInputItemUnionParam, tools []responses.ToolUnionParam, onToken func(string)) (*responses.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := c.breaker.Execute(func() (*responses.Response, error) {
		return c.inner.ChatStream(ctx, input, tools, onToken)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("llm %q circuit open: %w", c.key, err)
	}
	return resp, err
}

// State reports the circuit breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

var _ Provider = (*Client)(nil)
