package notifications

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpChannel is the subset of *amqp.Channel the publisher uses
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher pushes transitions onto a durable RabbitMQ queue
type RabbitPublisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    amqpChannel
	queue string
}

// NewRabbitPublisher dials the broker and declares the queue
func NewRabbitPublisher(url, queue string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	return &RabbitPublisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, event *TransitionEvent) error {
	body, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal transition: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     event.ID.String(),
		CorrelationId: event.AttemptID,
		Timestamp:     event.OccurredAt,
		Type:          event.To,
		Body:          body,
	}

	// amqp channels are not safe for concurrent publishes
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish transition: %w", err)
	}
	return nil
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	if p.ch != nil {
		firstErr = p.ch.Close()
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
