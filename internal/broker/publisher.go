package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/haasonsaas/corpus/internal/config"
	"github.com/haasonsaas/corpus/internal/observability"
)

// Publisher emits synthetic object-created events, used to replay objects
// through the ingestion pipeline without touching the object store.
type Publisher struct {
	conn   *amqp.Connection
	ch     publishChannel
	config config.BrokerConfig
	logger *observability.Logger
}

// publishChannel is the slice of *amqp.Channel the publisher uses.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// NewPublisher connects to the broker and declares the event topology so
// replayed messages land on the same queue the consumer reads.
func NewPublisher(cfg config.BrokerConfig) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("broker url is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Heartbeat: defaultHeartbeat,
		Dial:      amqp.DefaultDial(cfg.DialTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Publisher{
		conn:   conn,
		ch:     ch,
		config: cfg,
		logger: observability.NewLogger(observability.LogConfig{}),
	}, nil
}

// WithLogger sets the logger.
func (p *Publisher) WithLogger(logger *observability.Logger) *Publisher {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// PublishObjectCreated publishes a durable synthetic event for objectKey.
func (p *Publisher) PublishObjectCreated(ctx context.Context, objectKey string) error {
	body, err := newObjectCreatedEvent(objectKey)
	if err != nil {
		return err
	}

	err = p.ch.PublishWithContext(ctx, p.config.Exchange, p.config.RoutingKey, false, false, publishing(body))
	if err != nil {
		return fmt.Errorf("publish event for %q: %w", objectKey, err)
	}
	p.logger.Info(ctx, "replay event published", "object", objectKey, "routing_key", p.config.RoutingKey)
	return nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	if closer, ok := p.ch.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.conn.Close()
			return fmt.Errorf("close channel: %w", err)
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
