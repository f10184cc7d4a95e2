package mediaref

import (
	"context"

	"github.com/google/uuid"
)

// NoopEventSink is a no-operation implementation of EventSink.
// Useful when no event handling is needed, and for testing.
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// ContentCreated does nothing and returns nil
func (n *NoopEventSink) ContentCreated(ctx context.Context, item *ContentItem) error {
	return nil
}

// ContentUpdated does nothing and returns nil
func (n *NoopEventSink) ContentUpdated(ctx context.Context, item *ContentItem) error {
	return nil
}

// ContentSoftDeleted does nothing and returns nil
func (n *NoopEventSink) ContentSoftDeleted(ctx context.Context, id uuid.UUID) error {
	return nil
}

// ContentRestored does nothing and returns nil
func (n *NoopEventSink) ContentRestored(ctx context.Context, item *ContentItem) error {
	return nil
}

// AssetDeleted does nothing and returns nil
func (n *NoopEventSink) AssetDeleted(ctx context.Context, id uuid.UUID) error {
	return nil
}
