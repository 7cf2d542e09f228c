// Package write orchestrates the attribute write pipeline: type
// resolution, value encoding, request pacing, submission, retry, and
// outcome classification for single and batched mutations.
package write

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/metawrite/metawrite/internal/metrics"
	"github.com/metawrite/metawrite/internal/ratelimit"
	"github.com/metawrite/metawrite/internal/recorder"
	"github.com/metawrite/metawrite/internal/resolve"
	"github.com/metawrite/metawrite/internal/transform"
	"github.com/metawrite/metawrite/pkg/errors"
	"github.com/metawrite/metawrite/pkg/retry"
	"github.com/metawrite/metawrite/pkg/types"
)

const (
	modeSingle = "single"
	modeBatch  = "batch"

	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Deps bundles the collaborators a coordinator is built from. Transport is
// required; everything else falls back to a working default.
type Deps struct {
	Transport types.Transport
	Resolver  *resolve.Resolver
	Limiter   *ratelimit.Limiter
	Retryer   *retry.Retryer
	Recorder  types.OperationRecorder
	Metrics   *metrics.Collector
	Logger    *slog.Logger
}

// Coordinator performs single-attribute writes. Safe for concurrent use;
// concurrent callers share the limiter and the resolver's definition cache.
type Coordinator struct {
	transport types.Transport
	resolver  *resolve.Resolver
	limiter   *ratelimit.Limiter
	retryer   *retry.Retryer
	recorder  types.OperationRecorder
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// NewCoordinator creates a write coordinator from deps.
func NewCoordinator(deps Deps) (*Coordinator, error) {
	if deps.Transport == nil {
		return nil, errors.New(errors.ErrCodeMissingConfig, "transport is required").
			WithComponent("coordinator")
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Resolver == nil {
		deps.Resolver = resolve.NewResolver(deps.Transport, resolve.DefaultOwnerType, nil, deps.Logger)
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewLimiter(0, 0) // package defaults
	}
	if deps.Retryer == nil {
		deps.Retryer = retry.New(retry.DefaultConfig())
	}
	if deps.Recorder == nil {
		deps.Recorder = recorder.Nop{}
	}

	return &Coordinator{
		transport: deps.Transport,
		resolver:  deps.Resolver,
		limiter:   deps.Limiter,
		retryer:   deps.Retryer,
		recorder:  deps.Recorder,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}, nil
}

// Resolver exposes the coordinator's resolver, shared with batch writes.
func (c *Coordinator) Resolver() *resolve.Resolver {
	return c.resolver
}

// WriteSingle resolves, encodes, and submits one attribute value.
//
// Resolution and transformation failures abort before the limiter is
// consulted, so a rejected input never costs a request token. Transient
// transport failures are retried with backoff up to the configured bound.
// Remote userErrors are terminal: the write is not retried and the remote's
// messages are returned verbatim on the outcome.
func (c *Coordinator) WriteSingle(ctx context.Context, identity types.AttributeIdentity, value interface{}, hint *types.TypeDescriptor) (*types.WriteOutcome, error) {
	start := time.Now()

	if err := validateIdentity(identity); err != nil {
		return nil, err
	}

	cached := c.resolver.Cache().Contains(identity.CacheKey())
	c.metrics.RecordCacheLookup(cached)
	if !cached {
		c.record(c.newEvent(types.EventDefinitionFetch, identity))
	}
	td, err := c.resolver.Resolve(ctx, identity, hint)
	if err != nil {
		c.finishFailure(identity, "", 0, err, start)
		return nil, err
	}
	ev := c.newEvent(types.EventTypeResolved, identity)
	ev.FieldType = td.String()
	c.record(ev)

	encoded, err := transform.Encode(value, td)
	if err != nil {
		c.finishFailure(identity, td.String(), 0, err, start)
		return nil, err
	}
	ev = c.newEvent(types.EventValueTransformed, identity)
	ev.FieldType = td.String()
	c.record(ev)

	input := []types.MetafieldInput{{
		Namespace: identity.Namespace,
		Key:       identity.Key,
		Type:      td.String(),
		Value:     encoded,
	}}

	var (
		attempts     int
		remoteErrors []types.RemoteError
	)

	retryer := c.retryer.WithOnRetry(func(attempt int, attemptErr error, delay time.Duration) {
		rev := c.newEvent(types.EventRetryScheduled, identity)
		rev.Attempt = attempt
		rev.Error = attemptErr.Error()
		c.record(rev)
		c.metrics.RecordRetry()
		c.logger.Warn("write attempt failed, retrying",
			"namespace", identity.Namespace,
			"key", identity.Key,
			"attempt", attempt,
			"delay", delay,
			"error", attemptErr)
	})

	err = retryer.DoWithContext(ctx, func(ctx context.Context) error {
		attempts++

		c.metrics.RecordRateLimitWait(c.limiter.WaitIfNeeded())
		c.metrics.RecordAttempt()

		aev := c.newEvent(types.EventWriteAttempt, identity)
		aev.FieldType = td.String()
		aev.Attempt = attempts
		c.record(aev)

		result, execErr := c.transport.ExecuteMutation(ctx, identity.OwnerID, input)
		if execErr != nil {
			return execErr
		}
		if len(result.UserErrors) > 0 {
			remoteErrors = result.UserErrors
			return remoteRejection(result.UserErrors).
				WithContext("namespace", identity.Namespace).
				WithContext("key", identity.Key)
		}
		return nil
	})

	outcome := &types.WriteOutcome{
		EncodedValue: encoded,
		Attempts:     attempts,
	}
	if err != nil {
		outcome.RemoteErrors = remoteErrors
		c.finishFailure(identity, td.String(), attempts, err, start)
		return outcome, err
	}

	outcome.Success = true
	sev := c.newEvent(types.EventWriteSuccess, identity)
	sev.FieldType = td.String()
	sev.Attempt = attempts
	c.record(sev)
	c.metrics.RecordWrite(modeSingle, outcomeSuccess, time.Since(start))
	c.logger.Info("metafield written",
		"owner_id", identity.OwnerID,
		"namespace", identity.Namespace,
		"key", identity.Key,
		"type", td.String(),
		"attempts", attempts)

	return outcome, nil
}

func (c *Coordinator) finishFailure(identity types.AttributeIdentity, fieldType string, attempts int, err error, start time.Time) {
	ev := c.newEvent(types.EventWriteFailure, identity)
	ev.FieldType = fieldType
	ev.Attempt = attempts
	ev.Error = err.Error()
	c.record(ev)
	c.metrics.RecordWrite(modeSingle, outcomeFailure, time.Since(start))
	c.logger.Error("metafield write failed",
		"owner_id", identity.OwnerID,
		"namespace", identity.Namespace,
		"key", identity.Key,
		"attempts", attempts,
		"error", err)
}

func (c *Coordinator) newEvent(kind types.EventKind, identity types.AttributeIdentity) types.OperationEvent {
	ev := recorder.NewEvent(kind)
	ev.OwnerID = identity.OwnerID
	ev.Namespace = identity.Namespace
	ev.Key = identity.Key
	return ev
}

// record delivers an event to the recorder. Recording is fire-and-forget:
// a panicking recorder must never take a write down with it.
func (c *Coordinator) record(event types.OperationEvent) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("operation recorder panicked", "panic", r, "event", string(event.Kind))
		}
	}()
	c.recorder.Record(event)
}

func validateIdentity(identity types.AttributeIdentity) error {
	switch {
	case identity.OwnerID == "":
		return errors.New(errors.ErrCodeInvalidInput, "owner id is required").
			WithComponent("coordinator")
	case identity.Namespace == "":
		return errors.New(errors.ErrCodeInvalidInput, "namespace is required").
			WithComponent("coordinator")
	case identity.Key == "":
		return errors.New(errors.ErrCodeInvalidInput, "key is required").
			WithComponent("coordinator")
	}
	return nil
}

// remoteRejection folds the remote's field-level errors into one terminal,
// non-retryable failure carrying the messages verbatim.
func remoteRejection(remote []types.RemoteError) *errors.WriteError {
	msgs := make([]string, len(remote))
	for i, re := range remote {
		msgs[i] = re.String()
	}
	return errors.New(errors.ErrCodeValidationFailed, strings.Join(msgs, "; ")).
		WithComponent("coordinator").
		WithOperation("write")
}
