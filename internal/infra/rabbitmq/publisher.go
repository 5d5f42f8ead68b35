package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"contest-engine/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// EventPublisher forwards room events to a durable topic exchange. Routing
// keys look like contest.question_scored so consumers can bind per event type.
type EventPublisher struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex
	ch *amqp.Channel
}

// Dial connects to the broker and declares the exchange.
func Dial(url, exchange string) (*EventPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	p := &EventPublisher{conn: conn, exchange: exchange}
	if _, err := p.channel(); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

// Publish implements app.EventSink.
func (p *EventPublisher) Publish(ctx context.Context, event domain.Event) error {
	msg, err := newPublishing(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channelLocked()
	if err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx, p.exchange, RoutingKey(event.Type), false, false, msg); err != nil {
		return fmt.Errorf("publish event %s: %w", event.Type, err)
	}
	return nil
}

func (p *EventPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	return p.conn.Close()
}

func (p *EventPublisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channelLocked()
}

// channelLocked reopens the channel after the broker closed it, e.g. on a
// publish error.
func (p *EventPublisher) channelLocked() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		p.exchange, // name
		"topic",    // kind
		true,       // durable
		false,      // delete when unused
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.ch = ch
	return ch, nil
}

// RoutingKey maps an event type to its routing key.
func RoutingKey(t domain.EventType) string {
	return "contest." + string(t)
}

func newPublishing(event domain.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode event %s: %w", event.Type, err)
	}
	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    event.ContestID + ":" + strconv.FormatInt(event.Seq, 10),
		Timestamp:    event.At,
		Type:         string(event.Type),
		Headers:      amqp.Table{"contest_id": event.ContestID},
		Body:         body,
	}, nil
}
