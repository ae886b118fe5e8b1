package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	ExchangeName = "patient-registry.events"
	ExchangeType = "topic"

	dialAttempts = 5
)

// Publisher handles publishing events to RabbitMQ
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher dials RabbitMQ with exponential backoff and declares the
// topic exchange.
func NewPublisher(ctx context.Context, rabbitmqURL string, logger *zap.Logger) (*Publisher, error) {
	logger.Info("connecting to RabbitMQ", zap.String("url", redactURL(rabbitmqURL)))

	var conn *amqp.Connection
	dial := func() error {
		c, err := amqp.Dial(rabbitmqURL)
		if err != nil {
			logger.Warn("RabbitMQ dial failed", zap.Error(err))
			return err
		}
		conn = c
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), dialAttempts), ctx)
	if err := backoff.Retry(dial, policy); err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		ExchangeName, // name
		ExchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.Info("✓ Connected to RabbitMQ", zap.String("exchange", ExchangeName))

	return &Publisher{
		conn:     conn,
		channel:  channel,
		exchange: ExchangeName,
		logger:   logger,
	}, nil
}

// Publish publishes an event to RabbitMQ with the specified routing key
func (p *Publisher) Publish(ctx context.Context, routingKey string, eventData interface{}) error {
	if p == nil || p.channel == nil {
		return nil
	}

	body, err := json.Marshal(eventData)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			MessageId:    uuid.NewString(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", routingKey, err)
	}

	p.logger.Debug("published event", zap.String("routing_key", routingKey))
	return nil
}

// Close closes the RabbitMQ connection
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn("error closing RabbitMQ channel", zap.Error(err))
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// redactURL hides credentials in a broker URL for logging.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "amqp://***"
	}
	return u.Redacted()
}
