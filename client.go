// Package metawrite is a reliability layer over a remote catalog service's
// typed metafield write API. It resolves the authoritative type of each
// attribute slot, encodes values to the exact wire representation that type
// requires, paces requests against the service's rate budget, and retries
// transient failures, for single writes and owner-scoped batches.
package metawrite

import (
	"context"
	"log/slog"
	"os"

	"github.com/metawrite/metawrite/internal/circuit"
	"github.com/metawrite/metawrite/internal/config"
	"github.com/metawrite/metawrite/internal/metrics"
	"github.com/metawrite/metawrite/internal/ratelimit"
	"github.com/metawrite/metawrite/internal/recorder"
	"github.com/metawrite/metawrite/internal/resolve"
	"github.com/metawrite/metawrite/internal/transport"
	"github.com/metawrite/metawrite/internal/write"
	"github.com/metawrite/metawrite/pkg/errors"
	"github.com/metawrite/metawrite/pkg/retry"
	"github.com/metawrite/metawrite/pkg/types"
)

// Config is the application configuration, re-exported for callers.
type Config = config.Configuration

// BatchItem is one attribute in a batched write.
type BatchItem = write.BatchItem

// NewDefaultConfig returns the default configuration.
func NewDefaultConfig() *Config {
	return config.NewDefault()
}

// Option customizes client assembly.
type Option func(*clientOptions)

type clientOptions struct {
	logger    *slog.Logger
	transport types.Transport
	recorder  types.OperationRecorder
}

// WithLogger substitutes the client's logger. By default the logger is
// built from the configured level and format.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// WithTransport substitutes the remote transport, bypassing the built-in
// GraphQL client. Intended for tests and custom wire layers.
func WithTransport(t types.Transport) Option {
	return func(o *clientOptions) { o.transport = t }
}

// WithRecorder adds an operation recorder alongside the default slog sink.
func WithRecorder(r types.OperationRecorder) Option {
	return func(o *clientOptions) { o.recorder = r }
}

// Client is the assembled write pipeline. Safe for concurrent use.
type Client struct {
	cfg     *config.Configuration
	logger  *slog.Logger
	limiter *ratelimit.Limiter
	metrics *metrics.Collector

	single *write.Coordinator
	batch  *write.BatchCoordinator
}

// New assembles a client from cfg. The configuration must already carry the
// shop domain and access token; Validate is applied before any wiring.
func New(cfg *config.Configuration, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrCodeMissingConfig, "configuration is required").
			WithComponent("client")
	}

	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	// A custom transport carries its own endpoint and credentials, so the
	// remote section is only validated when we build the transport.
	if o.transport == nil {
		if err := cfg.Validate(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "invalid configuration").
				WithComponent("client")
		}
	}

	logger := o.logger
	if logger == nil {
		logger = newLogger(cfg)
	}

	var collector *metrics.Collector
	if cfg.Monitoring.MetricsEnabled {
		mc := metrics.DefaultConfig()
		mc.Port = cfg.Monitoring.MetricsPort
		var err error
		collector, err = metrics.NewCollector(mc)
		if err != nil {
			return nil, err
		}
	}

	tp := o.transport
	if tp == nil {
		var topts []transport.Option
		if cfg.CircuitBreaker.Enabled {
			threshold := uint32(cfg.CircuitBreaker.FailureThreshold)
			breaker := circuit.NewBreaker("transport", circuit.Config{
				Timeout: cfg.CircuitBreaker.Timeout,
				ReadyToTrip: func(counts circuit.Counts) bool {
					return counts.ConsecutiveFailures >= threshold
				},
				OnStateChange: func(name string, from, to circuit.State) {
					logger.Warn("circuit breaker state changed",
						"breaker", name, "from", from.String(), "to", to.String())
				},
			})
			topts = append(topts, transport.WithCircuitBreaker(breaker))
		}

		client, err := transport.NewClient(&transport.Config{
			ShopDomain:  cfg.Remote.ShopDomain,
			AccessToken: cfg.Remote.AccessToken,
			APIVersion:  cfg.Remote.APIVersion,
			Timeout:     cfg.Remote.Timeout,
		}, logger, topts...)
		if err != nil {
			return nil, err
		}
		tp = client
	}

	var rec types.OperationRecorder = recorder.NewSlogRecorder(logger)
	if o.recorder != nil {
		rec = recorder.Multi{rec, o.recorder}
	}

	limiter := ratelimit.NewLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize)
	resolver := resolve.NewResolver(tp, cfg.Remote.OwnerType, resolve.NewDefinitionCache(), logger)

	deps := write.Deps{
		Transport: tp,
		Resolver:  resolver,
		Limiter:   limiter,
		Retryer:   retry.New(cfg.Retry),
		Recorder:  rec,
		Metrics:   collector,
		Logger:    logger,
	}

	single, err := write.NewCoordinator(deps)
	if err != nil {
		return nil, err
	}
	batch, err := write.NewBatchCoordinator(deps)
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:     cfg,
		logger:  logger,
		limiter: limiter,
		metrics: collector,
		single:  single,
		batch:   batch,
	}, nil
}

// WriteSingle writes one attribute value to the identified slot.
func (c *Client) WriteSingle(ctx context.Context, identity types.AttributeIdentity, value interface{}, hint *types.TypeDescriptor) (*types.WriteOutcome, error) {
	return c.single.WriteSingle(ctx, identity, value, hint)
}

// WriteBatch writes all items against one owner in a single mutation.
// The batch size is bounded by the configured maximum.
func (c *Client) WriteBatch(ctx context.Context, ownerID string, items []BatchItem) (*types.BatchOutcome, error) {
	if len(items) > c.cfg.Batch.MaxItems {
		return nil, errors.Newf(errors.ErrCodeBatchRejected,
			"batch of %d exceeds the configured maximum of %d", len(items), c.cfg.Batch.MaxItems).
			WithComponent("client")
	}
	return c.batch.WriteBatch(ctx, ownerID, items)
}

// ResetLimiter restores a full token bucket, e.g. after a long idle period
// with a fresh rate budget.
func (c *Client) ResetLimiter() {
	c.limiter.Reset()
}

// Start brings up the metrics endpoint when monitoring is enabled.
func (c *Client) Start() error {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.Start()
}

// Shutdown stops the metrics endpoint.
func (c *Client) Shutdown(ctx context.Context) error {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.Stop(ctx)
}

func newLogger(cfg *config.Configuration) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Logging.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, hopts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, hopts))
}
