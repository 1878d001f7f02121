package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/metacode/fiches-api/internal/core/domain"
	"github.com/metacode/fiches-api/internal/pkg/metrics"
)

// Message is the wire form of a change event: the event name and its JSON payload.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewMessage serializes payload under the given event name.
func NewMessage(event string, payload any) (Message, error) {
	if payload == nil {
		return Message{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s: %w", event, err)
	}
	return Message{Event: event, Data: data}, nil
}

// Broadcaster publishes change events to every subscriber of a Registry.
type Broadcaster struct {
	registry *Registry
	logger   zerolog.Logger
}

func NewBroadcaster(registry *Registry, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, logger: logger}
}

// Publish delivers ev to the subscribers connected right now. It never
// blocks on a subscriber: a full buffer drops the event for that subscriber
// only. Events published from one goroutine reach each subscriber in order.
func (b *Broadcaster) Publish(ev domain.ChangeEvent) {
	msg, err := NewMessage(ev.EventName(), ev.Payload())
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to encode change event")
		return
	}
	metrics.BroadcastEventsTotal.WithLabelValues(msg.Event).Inc()

	delivered, dropped := 0, 0
	b.registry.each(func(sub *Subscriber) {
		select {
		case sub.ch <- msg:
			delivered++
		default:
			dropped++
			b.logger.Debug().
				Str("sub_id", sub.ID).
				Str("event", msg.Event).
				Msg("dropped event for slow subscriber")
		}
	})

	if dropped > 0 {
		metrics.BroadcastDroppedTotal.Add(float64(dropped))
	}
	b.logger.Debug().
		Str("event", msg.Event).
		Int("delivered", delivered).
		Int("dropped", dropped).
		Msg("change event published")
}
