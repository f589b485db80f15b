package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/example/image-picker/internal/logging"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPPublisher sends events to a durable RabbitMQ queue consumed by the host.
type AMQPPublisher struct {
	ch     amqpChannel
	conn   *amqp.Connection
	queue  string
	logger *zap.Logger
}

// DialAMQP connects to url and declares queue.
func DialAMQP(url, queue string, logger *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, logging.NewOperationError("events.amqp_dial", "", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, logging.NewOperationError("events.amqp_channel", "", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, logging.NewOperationError("events.amqp_declare", "", err)
	}
	p := NewAMQPPublisher(ch, queue, logger)
	p.conn = conn
	return p, nil
}

// NewAMQPPublisher wraps an already open channel.
func NewAMQPPublisher(ch amqpChannel, queue string, logger *zap.Logger) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, queue: queue, logger: logger.Named("amqp_publisher")}
}

// Publish sends evt as a persistent JSON message on the queue.
func (p *AMQPPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.RequestID,
		Type:         string(evt.Type),
		Timestamp:    evt.Time,
		Body:         body,
	})
	if err != nil {
		wrapped := logging.NewOperationError("events.amqp_publish", evt.RequestID, err)
		p.logger.Error("failed to publish event", zap.Error(wrapped), zap.String("type", string(evt.Type)))
		return wrapped
	}
	return nil
}

// HasForeground is true while the broker connection is open.
func (p *AMQPPublisher) HasForeground() bool {
	return p.conn == nil || !p.conn.IsClosed()
}

// Close closes the broker connection, if one was dialed.
func (p *AMQPPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
