package write

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/metawrite/metawrite/internal/transform"
	"github.com/metawrite/metawrite/pkg/errors"
	"github.com/metawrite/metawrite/pkg/types"
)

// prepConcurrency bounds concurrent type lookups during batch preparation.
// Lookups for distinct keys hit the remote service; the limiter does not
// gate reads, so preparation stays narrower than the write path.
const prepConcurrency = 4

// BatchItem is one attribute in a batched write. Hint is an optional
// caller-asserted type used only when no authoritative type is found.
type BatchItem struct {
	Namespace string
	Key       string
	Value     interface{}
	Hint      *types.TypeDescriptor
}

// BatchCoordinator submits N attribute writes against one owning entity as
// a single mutation: one rate-limiter token, one transport round-trip.
type BatchCoordinator struct {
	c *Coordinator
}

// NewBatchCoordinator creates a batch coordinator from deps.
func NewBatchCoordinator(deps Deps) (*BatchCoordinator, error) {
	c, err := NewCoordinator(deps)
	if err != nil {
		return nil, err
	}
	return &BatchCoordinator{c: c}, nil
}

// WriteBatch resolves and encodes every item, then submits all of them in
// one mutation against ownerID.
//
// Preparation is fail-fast: if any item cannot be resolved or encoded, the
// transport is never invoked and the returned error enumerates every
// offending item. After submission, the remote service may accept items
// selectively; the outcome reports acceptance per item, derived from the
// userError field paths.
func (b *BatchCoordinator) WriteBatch(ctx context.Context, ownerID string, items []BatchItem) (*types.BatchOutcome, error) {
	start := time.Now()
	c := b.c

	if ownerID == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "owner id is required").
			WithComponent("batch")
	}
	if len(items) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "batch contains no items").
			WithComponent("batch")
	}

	inputs, results, err := b.prepare(ctx, ownerID, items)
	if err != nil {
		ev := c.newEvent(types.EventWriteFailure, types.AttributeIdentity{OwnerID: ownerID})
		ev.BatchSize = len(items)
		ev.Error = err.Error()
		c.record(ev)
		c.metrics.RecordWrite(modeBatch, outcomeFailure, time.Since(start))
		return nil, err
	}

	c.metrics.RecordBatchSize(len(inputs))

	var (
		attempts     int
		remoteErrors []types.RemoteError
	)

	retryer := c.retryer.WithOnRetry(func(attempt int, attemptErr error, delay time.Duration) {
		rev := c.newEvent(types.EventRetryScheduled, types.AttributeIdentity{OwnerID: ownerID})
		rev.Attempt = attempt
		rev.BatchSize = len(inputs)
		rev.Error = attemptErr.Error()
		c.record(rev)
		c.metrics.RecordRetry()
		c.logger.Warn("batch attempt failed, retrying",
			"owner_id", ownerID,
			"batch_size", len(inputs),
			"attempt", attempt,
			"delay", delay,
			"error", attemptErr)
	})

	err = retryer.DoWithContext(ctx, func(ctx context.Context) error {
		attempts++

		c.metrics.RecordRateLimitWait(c.limiter.WaitIfNeeded())
		c.metrics.RecordAttempt()

		sev := c.newEvent(types.EventBatchSubmitted, types.AttributeIdentity{OwnerID: ownerID})
		sev.BatchSize = len(inputs)
		sev.Attempt = attempts
		c.record(sev)

		result, execErr := c.transport.ExecuteMutation(ctx, ownerID, inputs)
		if execErr != nil {
			return execErr
		}
		if len(result.UserErrors) > 0 {
			remoteErrors = result.UserErrors
			return remoteRejection(result.UserErrors).
				WithOperation("write_batch").
				WithContext("owner_id", ownerID)
		}
		return nil
	})

	outcome := &types.BatchOutcome{Attempts: attempts, Items: results}

	if err != nil && len(remoteErrors) == 0 {
		// Transport never accepted anything: transient exhaustion or
		// a request-level rejection.
		ev := c.newEvent(types.EventWriteFailure, types.AttributeIdentity{OwnerID: ownerID})
		ev.BatchSize = len(inputs)
		ev.Attempt = attempts
		ev.Error = err.Error()
		c.record(ev)
		c.metrics.RecordWrite(modeBatch, outcomeFailure, time.Since(start))
		return outcome, err
	}

	if len(remoteErrors) > 0 {
		// Items the remote did not complain about were accepted.
		applyRemoteErrors(results, remoteErrors)

		ev := c.newEvent(types.EventBatchPartialError, types.AttributeIdentity{OwnerID: ownerID})
		ev.BatchSize = len(inputs)
		ev.Attempt = attempts
		ev.Error = err.Error()
		c.record(ev)
		c.metrics.RecordWrite(modeBatch, outcomeFailure, time.Since(start))
		return outcome, err
	}

	for i := range outcome.Items {
		outcome.Items[i].Accepted = true
	}
	outcome.Success = true

	sev := c.newEvent(types.EventWriteSuccess, types.AttributeIdentity{OwnerID: ownerID})
	sev.BatchSize = len(inputs)
	sev.Attempt = attempts
	c.record(sev)
	c.metrics.RecordWrite(modeBatch, outcomeSuccess, time.Since(start))
	c.logger.Info("batch written",
		"owner_id", ownerID,
		"batch_size", len(inputs),
		"attempts", attempts)

	return outcome, nil
}

// prepare resolves and encodes every item concurrently. Either every item
// encodes cleanly or the whole batch is rejected with all failures listed.
func (b *BatchCoordinator) prepare(ctx context.Context, ownerID string, items []BatchItem) ([]types.MetafieldInput, []types.ItemResult, error) {
	c := b.c

	inputs := make([]types.MetafieldInput, len(items))
	results := make([]types.ItemResult, len(items))
	itemErrs := make([]error, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prepConcurrency)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			identity := types.AttributeIdentity{
				OwnerID:   ownerID,
				Namespace: item.Namespace,
				Key:       item.Key,
			}
			results[i] = types.ItemResult{Namespace: item.Namespace, Key: item.Key}

			if item.Namespace == "" || item.Key == "" {
				itemErrs[i] = errors.Newf(errors.ErrCodeInvalidInput,
					"item %d: namespace and key are required", i).
					WithComponent("batch")
				return nil
			}

			cached := c.resolver.Cache().Contains(identity.CacheKey())
			c.metrics.RecordCacheLookup(cached)
			if !cached {
				c.record(c.newEvent(types.EventDefinitionFetch, identity))
			}
			td, err := c.resolver.Resolve(gctx, identity, item.Hint)
			if err != nil {
				itemErrs[i] = err
				return nil
			}

			encoded, err := transform.Encode(item.Value, td)
			if err != nil {
				itemErrs[i] = err
				return nil
			}

			inputs[i] = types.MetafieldInput{
				Namespace: item.Namespace,
				Key:       item.Key,
				Type:      td.String(),
				Value:     encoded,
			}
			results[i].Type = td.String()
			results[i].EncodedValue = encoded
			return nil
		})
	}
	_ = g.Wait()

	var failed []int
	for i, err := range itemErrs {
		if err != nil {
			failed = append(failed, i)
		}
	}
	if len(failed) == 0 {
		return inputs, results, nil
	}

	sort.Ints(failed)
	parts := make([]string, len(failed))
	agg := errors.Newf(errors.ErrCodeBatchRejected,
		"%d of %d items failed preparation", len(failed), len(items)).
		WithComponent("batch").
		WithOperation("prepare").
		WithCause(itemErrs[failed[0]])
	for n, i := range failed {
		parts[n] = fmt.Sprintf("%s.%s: %s", items[i].Namespace, items[i].Key, itemErrs[i].Error())
		agg = agg.WithContext(fmt.Sprintf("item_%d", i), itemErrs[i].Error())
	}
	agg.Message += ": " + strings.Join(parts, "; ")
	return nil, nil, agg
}

// applyRemoteErrors attributes userErrors to batch items by their field
// paths ("input", "metafields", "<index>", ...) and marks the untouched
// items accepted. Errors with no parsable index are returned unattributed.
func applyRemoteErrors(results []types.ItemResult, remote []types.RemoteError) []types.RemoteError {
	var unattributed []types.RemoteError

	rejected := make(map[int]bool)
	for _, re := range remote {
		idx, ok := itemIndexOf(re.Field, len(results))
		if !ok {
			unattributed = append(unattributed, re)
			continue
		}
		rejected[idx] = true
		results[idx].Errors = append(results[idx].Errors, re)
	}

	// An unattributed error taints the whole batch: no item can be
	// confirmed accepted.
	for i := range results {
		results[i].Accepted = !rejected[i] && len(unattributed) == 0
	}
	return unattributed
}

func itemIndexOf(field []string, n int) (int, bool) {
	if len(field) < 3 || field[0] != "input" || field[1] != "metafields" {
		return 0, false
	}
	idx, err := strconv.Atoi(field[2])
	if err != nil || idx < 0 || idx >= n {
		return 0, false
	}
	return idx, true
}
