// Package resolve determines the authoritative metafield type for a
// (namespace, key) pair. Resolution walks a priority-ordered strategy chain:
// the definition cache, the remote schema definition, inspection of an
// existing metafield on the owner, and finally a caller-supplied hint.
package resolve

import (
	"context"
	"io"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/metawrite/metawrite/pkg/errors"
	"github.com/metawrite/metawrite/pkg/types"
)

// DefaultOwnerType scopes definition lookups when no owner type is
// configured.
const DefaultOwnerType = "PRODUCT"

// Resolver resolves metafield types with a cache-filling strategy chain.
// Concurrent resolutions of the same namespace:key are collapsed into a
// single network lookup.
type Resolver struct {
	transport types.Transport
	cache     *DefinitionCache
	ownerType string
	logger    *slog.Logger
	group     singleflight.Group
}

// strategy is one step of the resolution chain. It returns the descriptor
// and true when it produced an answer; lookup failures are reported so the
// chain can degrade to the next step.
type strategy struct {
	name string
	run  func(ctx context.Context, identity types.AttributeIdentity) (types.TypeDescriptor, bool, error)
}

// NewResolver creates a resolver backed by the given transport and cache.
// A nil cache gets a private one; a nil logger discards output.
func NewResolver(transport types.Transport, ownerType string, cache *DefinitionCache, logger *slog.Logger) *Resolver {
	if cache == nil {
		cache = NewDefinitionCache()
	}
	if ownerType == "" {
		ownerType = DefaultOwnerType
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{
		transport: transport,
		cache:     cache,
		ownerType: ownerType,
		logger:    logger,
	}
}

// Cache returns the resolver's definition cache.
func (r *Resolver) Cache() *DefinitionCache {
	return r.cache
}

// Resolve determines the type for the identity in strict priority order:
// cache, definition lookup, existing-attribute inspection, explicit hint.
// The hint is a per-call assertion, not schema, so it is never cached.
// Fails with TYPE_UNRESOLVED when every source comes up empty.
func (r *Resolver) Resolve(ctx context.Context, identity types.AttributeIdentity, hint *types.TypeDescriptor) (types.TypeDescriptor, error) {
	cacheKey := identity.CacheKey()

	if td, ok := r.cache.Get(cacheKey); ok {
		return td, nil
	}

	// Collapse concurrent lookups for the same key into one round-trip.
	v, err, _ := r.group.Do(cacheKey, func() (interface{}, error) {
		// A racing caller may have filled the cache while we queued.
		if td, ok := r.cache.Get(cacheKey); ok {
			return td, nil
		}

		var lastLookupErr error
		for _, s := range r.strategies() {
			td, found, err := s.run(ctx, identity)
			if err != nil {
				// A failed lookup degrades to the next source rather
				// than aborting resolution outright.
				r.logger.Warn("type lookup failed",
					"strategy", s.name,
					"namespace", identity.Namespace,
					"key", identity.Key,
					"error", err)
				lastLookupErr = err
				continue
			}
			if found {
				r.logger.Debug("type resolved",
					"strategy", s.name,
					"namespace", identity.Namespace,
					"key", identity.Key,
					"type", td.String())
				r.cache.Put(cacheKey, td)
				return td, nil
			}
		}
		return types.TypeDescriptor{}, lastLookupErr
	})

	if td, ok := v.(types.TypeDescriptor); ok && !td.IsZero() {
		return td, nil
	}

	if hint != nil && !hint.IsZero() {
		r.logger.Debug("using caller-supplied type hint",
			"namespace", identity.Namespace,
			"key", identity.Key,
			"type", hint.String())
		return *hint, nil
	}

	unresolved := errors.Newf(errors.ErrCodeTypeUnresolved,
		"cannot determine metafield type for %s.%s: no definition, no existing value, no explicit hint",
		identity.Namespace, identity.Key).
		WithComponent("resolver").
		WithOperation("resolve").
		WithContext("namespace", identity.Namespace).
		WithContext("key", identity.Key)
	if err != nil {
		unresolved = unresolved.WithCause(err)
	}
	return types.TypeDescriptor{}, unresolved
}

func (r *Resolver) strategies() []strategy {
	return []strategy{
		{name: "definition_lookup", run: r.lookupDefinition},
		{name: "existing_attribute", run: r.lookupExistingAttribute},
	}
}

// lookupDefinition consults the remote schema declaration. This is the
// authoritative source.
func (r *Resolver) lookupDefinition(ctx context.Context, identity types.AttributeIdentity) (types.TypeDescriptor, bool, error) {
	td, err := r.transport.LookupDefinition(ctx, r.ownerType, identity.Namespace, identity.Key)
	if err != nil {
		return types.TypeDescriptor{}, false, err
	}
	if td.IsZero() {
		return types.TypeDescriptor{}, false, nil
	}
	return td, true, nil
}

// lookupExistingAttribute inspects the owner's current metafield. This
// reflects the last-written type rather than a schema, so it ranks below
// the definition lookup.
func (r *Resolver) lookupExistingAttribute(ctx context.Context, identity types.AttributeIdentity) (types.TypeDescriptor, bool, error) {
	record, err := r.transport.LookupExistingAttribute(ctx, identity.OwnerID, identity.Namespace, identity.Key)
	if err != nil {
		return types.TypeDescriptor{}, false, err
	}
	if record == nil || record.Type == "" {
		return types.TypeDescriptor{}, false, nil
	}
	td, err := types.ParseType(record.Type)
	if err != nil {
		return types.TypeDescriptor{}, false, errors.Wrap(err, errors.ErrCodeTypeInvalid,
			"existing metafield declares an unparseable type").
			WithContext("declared_type", record.Type)
	}
	return td, true, nil
}
