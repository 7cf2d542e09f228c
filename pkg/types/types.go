package types

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies one of the catalog service's metafield value types.
// The constants mirror the wire-level type names used by the remote API.
type Kind string

const (
	KindSingleLineText Kind = "single_line_text_field"
	KindMultiLineText  Kind = "multi_line_text_field"
	KindInteger        Kind = "number_integer"
	KindDecimal        Kind = "number_decimal"
	KindBoolean        Kind = "boolean"
	KindJSON           Kind = "json"
	KindDate           Kind = "date"
	KindDateTime       Kind = "date_time"
	KindDimension      Kind = "dimension"
	KindVolume         Kind = "volume"
	KindWeight         Kind = "weight"
	KindColor          Kind = "color"
	KindRating         Kind = "rating"

	KindProductReference Kind = "product_reference"
	KindVariantReference Kind = "variant_reference"
	KindFileReference    Kind = "file_reference"
	KindPageReference    Kind = "page_reference"
)

// listPrefix is the wire-form marker for list types, e.g. "list.number_integer".
const listPrefix = "list."

// TypeDescriptor describes the authoritative type of one metafield slot.
// For list types, List is true and Element holds the scalar element kind.
type TypeDescriptor struct {
	Kind    Kind `json:"kind"`
	List    bool `json:"list,omitempty"`
	Element Kind `json:"element,omitempty"`
}

// ScalarType returns a descriptor for a non-list kind.
func ScalarType(kind Kind) TypeDescriptor {
	return TypeDescriptor{Kind: kind}
}

// ListType returns a descriptor for a list of the given scalar element kind.
func ListType(element Kind) TypeDescriptor {
	return TypeDescriptor{Kind: Kind(listPrefix + string(element)), List: true, Element: element}
}

// ParseType parses a wire-form type name ("number_integer",
// "list.single_line_text_field") into a TypeDescriptor.
func ParseType(name string) (TypeDescriptor, error) {
	if name == "" {
		return TypeDescriptor{}, fmt.Errorf("empty metafield type")
	}
	if strings.HasPrefix(name, listPrefix) {
		element := strings.TrimPrefix(name, listPrefix)
		if element == "" || strings.HasPrefix(element, listPrefix) {
			return TypeDescriptor{}, fmt.Errorf("invalid list metafield type %q", name)
		}
		return ListType(Kind(element)), nil
	}
	return ScalarType(Kind(name)), nil
}

// String renders the descriptor back into the remote API's type name.
func (t TypeDescriptor) String() string {
	return string(t.Kind)
}

// IsZero reports whether the descriptor is unset.
func (t TypeDescriptor) IsZero() bool {
	return t.Kind == ""
}

// AttributeIdentity identifies one metafield slot on one owning entity.
// OwnerID is the remote service's opaque global id, passed through unmodified.
type AttributeIdentity struct {
	OwnerID   string `json:"owner_id"`
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
}

// CacheKey returns the type-resolution cache key. Type is assumed
// owner-independent for a given (namespace, key) pair.
func (a AttributeIdentity) CacheKey() string {
	return a.Namespace + ":" + a.Key
}

// String returns a human-readable form for logs and errors.
func (a AttributeIdentity) String() string {
	return fmt.Sprintf("%s.%s on %s", a.Namespace, a.Key, a.OwnerID)
}

// MetafieldInput is one fully-encoded metafield ready for submission.
// Value carries the exact wire representation required for Type.
type MetafieldInput struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Type      string `json:"type"`
	Value     string `json:"value"`
}

// RemoteError is one field-level validation error (userError) returned by the
// remote API alongside an otherwise-successful response. Field is the error's
// input path, e.g. ["input", "metafields", "1", "value"].
type RemoteError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// String renders the error the way operators see it in the remote admin UI.
func (e RemoteError) String() string {
	if len(e.Field) == 0 {
		return e.Message
	}
	return strings.Join(e.Field, ".") + ": " + e.Message
}

// AttributeRecord is an existing metafield as read back from the remote
// service, used for type inference and returned in mutation results.
type AttributeRecord struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Type      string `json:"type"`
	Value     string `json:"value"`
}

// MutationResult is the application-level result of one write mutation.
// UserErrors is empty on full acceptance; transport-level failures are
// reported as errors, never folded into UserErrors.
type MutationResult struct {
	OwnerID    string            `json:"owner_id"`
	Metafields []AttributeRecord `json:"metafields"`
	UserErrors []RemoteError     `json:"user_errors"`
}

// WriteOutcome is the terminal result of one single-attribute write.
type WriteOutcome struct {
	Success      bool          `json:"success"`
	EncodedValue string        `json:"encoded_value"`
	RemoteErrors []RemoteError `json:"remote_errors,omitempty"`
	Attempts     int           `json:"attempts"`
}

// ItemResult is the per-item portion of a batch outcome.
type ItemResult struct {
	Namespace    string        `json:"namespace"`
	Key          string        `json:"key"`
	Type         string        `json:"type"`
	EncodedValue string        `json:"encoded_value"`
	Accepted     bool          `json:"accepted"`
	Errors       []RemoteError `json:"errors,omitempty"`
}

// BatchOutcome aggregates per-item results of one batched mutation. Success
// is true only when the remote service accepted every item.
type BatchOutcome struct {
	Success  bool         `json:"success"`
	Attempts int          `json:"attempts"`
	Items    []ItemResult `json:"items"`
}

// EventKind classifies operation events emitted by the write pipeline.
type EventKind string

const (
	EventWriteAttempt      EventKind = "write_attempt"
	EventWriteSuccess      EventKind = "write_success"
	EventWriteFailure      EventKind = "write_failure"
	EventDefinitionFetch   EventKind = "definition_fetch"
	EventTypeResolved      EventKind = "type_resolved"
	EventValueTransformed  EventKind = "value_transformed"
	EventRetryScheduled    EventKind = "retry_scheduled"
	EventBatchSubmitted    EventKind = "batch_submitted"
	EventBatchPartialError EventKind = "batch_partial_error"
)

// OperationEvent is one structured record of pipeline activity.
type OperationEvent struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	OwnerID   string `json:"owner_id,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	Key       string `json:"key,omitempty"`
	FieldType string `json:"field_type,omitempty"`

	Attempt   int    `json:"attempt,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
	Error     string `json:"error,omitempty"`
}
