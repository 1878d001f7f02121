package ports

import "github.com/metacode/fiches-api/internal/core/domain"

// EventPublisher fans a change event out to the currently connected
// subscribers. Delivery is best-effort and never reported to the caller.
type EventPublisher interface {
	Publish(event domain.ChangeEvent)
}
