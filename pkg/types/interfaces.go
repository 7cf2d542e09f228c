package types

import (
	"context"
)

// Transport executes requests against the remote catalog service. It must
// surface HTTP-level failures as errors, distinct from application-level
// userErrors carried inside MutationResult.
type Transport interface {
	// ExecuteMutation submits one metafield write mutation for the owner.
	// A non-nil error means the request never produced a usable response
	// (network failure, throttling, server error); UserErrors inside the
	// result mean the service processed the request and rejected values.
	ExecuteMutation(ctx context.Context, ownerID string, metafields []MetafieldInput) (*MutationResult, error)

	// LookupDefinition fetches the schema-declared type for a namespace/key
	// pair scoped to an owner type. Returns the zero descriptor and nil
	// error when no definition exists.
	LookupDefinition(ctx context.Context, ownerType, namespace, key string) (TypeDescriptor, error)

	// LookupExistingAttribute reads the owner's current metafield for the
	// namespace/key pair. Returns nil when the owner has no such metafield.
	LookupExistingAttribute(ctx context.Context, ownerID, namespace, key string) (*AttributeRecord, error)
}

// OperationRecorder receives pipeline events. Record is fire-and-forget:
// implementations must not block the write path and must never panic; the
// pipeline additionally guards each call so a misbehaving recorder cannot
// fail a write.
type OperationRecorder interface {
	Record(event OperationEvent)
}
