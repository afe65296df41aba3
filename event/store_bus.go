package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marcelsud/flowrelay/store"
	"github.com/rs/zerolog"
)

// StoreBus carries events over the state store's publish/subscribe channels
type StoreBus struct {
	ps     store.PubSub
	logger zerolog.Logger
}

// NewStoreBus creates a bus backed by ps
func NewStoreBus(ps store.PubSub, logger zerolog.Logger) *StoreBus {
	return &StoreBus{
		ps:     ps,
		logger: logger,
	}
}

// Publish encodes e as JSON and sends it on topic
func (b *StoreBus) Publish(ctx context.Context, topic string, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	if err := b.ps.Publish(ctx, topic, data); err != nil {
		return fmt.Errorf("publishing event %s: %w", e.Type, err)
	}

	return nil
}

// Subscribe decodes messages on topic and hands them to handler
func (b *StoreBus) Subscribe(ctx context.Context, topic string, handler Handler) (Unsubscribe, error) {
	sub, err := b.ps.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				sub.Close()
				return
			case msg, ok := <-sub.Messages():
				if !ok {
					return
				}

				var e Event
				if err := json.Unmarshal(msg, &e); err != nil {
					b.logger.Warn().Err(err).Str("topic", topic).Msg("Dropping undecodable event")
					continue
				}
				handler(e)
			}
		}
	}()

	return sub.Close, nil
}
