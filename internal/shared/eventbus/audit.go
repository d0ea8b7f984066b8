package eventbus

import (
	"context"

	"catalog-service/internal/shared/logger"
)

// RegisterAuditLog subscribes a handler that writes every domain event to log.
func RegisterAuditLog(bus *EventBus, log logger.Logger) {
	audit := log.WithComponent("audit")
	for _, eventType := range AllEventTypes {
		bus.Subscribe(eventType, func(ctx context.Context, event Event) error {
			fields := map[string]interface{}{
				"event":  event.Type(),
				"source": event.Source(),
			}
			for k, v := range event.Data() {
				fields[k] = v
			}
			audit.WithContext(ctx).WithFields(fields).Info("audit")
			return nil
		})
	}
}
