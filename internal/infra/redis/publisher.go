package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"contest-engine/internal/domain"
	"github.com/redis/go-redis/v9"
)

// EventPublisher fans room events out over Redis pub/sub so gateways on other
// instances can relay them.
// Events are published on: contest:{contestID}:events
type EventPublisher struct {
	client *redis.Client
}

func NewEventPublisher(client *redis.Client) *EventPublisher {
	return &EventPublisher{client: client}
}

// Publish implements app.EventSink.
func (p *EventPublisher) Publish(ctx context.Context, event domain.Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.Type, err)
	}
	if err := p.client.Publish(ctx, EventsChannel(event.ContestID), raw).Err(); err != nil {
		return fmt.Errorf("publish event %s: %w", event.Type, err)
	}
	return nil
}

// EventsChannel is the pub/sub channel carrying a contest's events.
func EventsChannel(contestID string) string {
	return "contest:" + contestID + ":events"
}
