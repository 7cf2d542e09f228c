// Package recorder provides OperationRecorder implementations for the write
// pipeline. The default sink is structured slog output; Multi fans events
// out to several sinks.
package recorder

import (
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/metawrite/metawrite/pkg/types"
)

// NewEvent creates an event of the given kind with a fresh id and timestamp.
func NewEvent(kind types.EventKind) types.OperationEvent {
	return types.OperationEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now(),
	}
}

// SlogRecorder writes operation events as structured log records.
type SlogRecorder struct {
	logger *slog.Logger
}

// NewSlogRecorder creates a recorder backed by the given logger. A nil
// logger discards output.
func NewSlogRecorder(logger *slog.Logger) *SlogRecorder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SlogRecorder{logger: logger}
}

// Record implements types.OperationRecorder.
func (r *SlogRecorder) Record(event types.OperationEvent) {
	attrs := []any{
		"event_id", event.ID,
		"kind", string(event.Kind),
	}
	if event.OwnerID != "" {
		attrs = append(attrs, "owner_id", event.OwnerID)
	}
	if event.Namespace != "" {
		attrs = append(attrs, "namespace", event.Namespace, "key", event.Key)
	}
	if event.FieldType != "" {
		attrs = append(attrs, "metafield_type", event.FieldType)
	}
	if event.Attempt > 0 {
		attrs = append(attrs, "attempt", event.Attempt)
	}
	if event.BatchSize > 0 {
		attrs = append(attrs, "batch_size", event.BatchSize)
	}
	if event.Error != "" {
		attrs = append(attrs, "error", event.Error)
	}

	switch event.Kind {
	case types.EventWriteFailure, types.EventBatchPartialError:
		r.logger.Error("metafield operation", attrs...)
	case types.EventWriteAttempt, types.EventWriteSuccess, types.EventBatchSubmitted:
		r.logger.Info("metafield operation", attrs...)
	default:
		r.logger.Debug("metafield operation", attrs...)
	}
}

// Nop discards all events.
type Nop struct{}

// Record implements types.OperationRecorder.
func (Nop) Record(types.OperationEvent) {}

// Multi fans events out to every recorder in order.
type Multi []types.OperationRecorder

// Record implements types.OperationRecorder.
func (m Multi) Record(event types.OperationEvent) {
	for _, r := range m {
		if r != nil {
			r.Record(event)
		}
	}
}
