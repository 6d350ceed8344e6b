package ports

import (
	"context"

	"github.com/nexuscrm/workflow/internal/domain/events"
)

// EventHandler reacts to one published event
type EventHandler func(ctx context.Context, payload interface{}) error

// EventPublisher fans engine events out to in-process subscribers.
// Publish runs handlers synchronously on the caller's context, so a handler
// joins the caller's transaction and its error aborts the operation.
type EventPublisher interface {
	// Subscribe returns a func that removes the handler.
	Subscribe(eventType events.EventType, handler EventHandler) func()
	Publish(ctx context.Context, eventType events.EventType, payload interface{}) error
}
