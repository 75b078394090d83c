package publisher

import (
	"context"
	"log/slog"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/mcncl/mediator-abort/internal/logging"
	"github.com/mcncl/mediator-abort/internal/middleware/request"
	"github.com/mcncl/mediator-abort/pkg/mediator"
)

// Attribute names set on every forwarded message.
const (
	EventIDAttribute     = "event_id"
	RequestIDAttribute   = "request_id"
	PublishedAtAttribute = "published_at"
)

// Forward registers a notification handler for TNotification that publishes
// each notification to p. Publishing runs under the dispatch context, so a
// notification published on behalf of an aborted request is abandoned.
func Forward[TNotification any](reg *mediator.Registry, p Publisher) {
	messageType := reflect.TypeFor[TNotification]().String()

	mediator.RegisterNotificationHandlerFunc(reg, func(ctx context.Context, n TNotification) error {
		attrs := map[string]string{
			MessageTypeAttribute: messageType,
			EventIDAttribute:     uuid.NewString(),
			PublishedAtAttribute: time.Now().UTC().Format(time.RFC3339Nano),
		}
		if id, ok := request.IDFromContext(ctx); ok {
			attrs[RequestIDAttribute] = id
		}

		msgID, err := p.Publish(ctx, n, attrs)
		if err != nil {
			return err
		}

		logging.FromContext(ctx).DebugContext(ctx, "Notification forwarded",
			slog.String("message_type", messageType),
			slog.String("message_id", msgID),
			slog.String("event_id", attrs[EventIDAttribute]),
		)
		return nil
	})
}
