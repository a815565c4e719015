// Package broker connects the ingestion pipeline to the object store's
// event stream over AMQP.
//
// The consumer holds one channel with prefetch 1 and processes deliveries
// strictly serially; parallelism comes from running more worker processes.
// Acknowledgement discipline: ACK on success and for non-PDF objects, NACK
// without requeue for everything else. Failed messages are not retried in
// place; operators replay them once the cause is fixed.
package broker

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/corpus/internal/config"
	"github.com/haasonsaas/corpus/internal/observability"
	"github.com/haasonsaas/corpus/pkg/models"
)

const defaultHeartbeat = 10 * time.Second

// Consumer event outcomes, used as metric labels.
const (
	OutcomeProcessed   = "processed"
	OutcomeSkipped     = "skipped"
	OutcomeQuarantined = "quarantined"
	OutcomeFailed      = "failed"
)

// Processor runs the ingestion pipeline for one object key.
type Processor interface {
	ProcessObject(ctx context.Context, objectKey string) (*models.Document, error)
}

// Consumer consumes bucket notifications and feeds them to the pipeline.
type Consumer struct {
	config   config.BrokerConfig
	pipeline Processor
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
}

// New creates a consumer. The broker connection is established by Run.
func New(cfg config.BrokerConfig, p Processor) (*Consumer, error) {
	if cfg.URL == "" {
		return nil, errors.New("broker url is required")
	}
	if cfg.Queue == "" {
		return nil, errors.New("broker queue is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &Consumer{
		config:   cfg,
		pipeline: p,
		logger:   observability.NewLogger(observability.LogConfig{}),
	}, nil
}

// WithLogger sets the logger.
func (c *Consumer) WithLogger(logger *observability.Logger) *Consumer {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithMetrics sets the metrics recorder.
func (c *Consumer) WithMetrics(m *observability.Metrics) *Consumer {
	c.metrics = m
	return c
}

// WithTracer enables per-delivery spans.
func (c *Consumer) WithTracer(t *observability.Tracer) *Consumer {
	c.tracer = t
	return c
}

// Run connects, declares the topology and consumes until ctx is cancelled.
// On cancellation it stops taking new deliveries, lets the in-flight one
// finish, drains the channel and returns nil. A dropped connection returns
// an error so the caller can decide whether to restart.
func (c *Consumer) Run(ctx context.Context) error {
	conn, err := amqp.DialConfig(c.config.URL, amqp.Config{
		Heartbeat: defaultHeartbeat,
		Dial:      amqp.DefaultDial(c.config.DialTimeout),
	})
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()
	closes := conn.NotifyClose(make(chan *amqp.Error, 1))

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := declareTopology(ch, c.config); err != nil {
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	tag := "corpus-" + uuid.New().String()[:8]
	deliveries, err := ch.Consume(c.config.Queue, tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume queue %q: %w", c.config.Queue, err)
	}

	c.logger.Info(ctx, "consuming bucket events",
		"queue", c.config.Queue,
		"exchange", c.config.Exchange,
		"routing_key", c.config.RoutingKey,
	)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.logger.Info(ctx, "stopping consumer, draining in-flight deliveries")
			if err := ch.Cancel(tag, false); err != nil {
				c.logger.Warn(ctx, "consumer cancel failed", "error", err)
			}
		case <-done:
		}
	}()

	for d := range deliveries {
		// Shutdown must not abort the delivery being processed: the
		// in-flight pipeline completes or fails on its own timeouts.
		c.handleDelivery(context.WithoutCancel(ctx), d)
	}

	if ctx.Err() != nil {
		c.logger.Info(ctx, "consumer drained")
		return nil
	}
	select {
	case amqpErr := <-closes:
		if amqpErr != nil {
			return fmt.Errorf("broker connection lost: %w", amqpErr)
		}
		return errors.New("broker connection closed")
	default:
		return errors.New("delivery stream ended unexpectedly")
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.TraceConsumerDelivery(ctx, c.config.Queue, d.RoutingKey)
		defer span.End()
	}

	key, err := ObjectKeyFromEvent(d.Body)
	if err != nil {
		c.logger.Error(ctx, "quarantining undeliverable event", "error", err, "bytes", len(d.Body))
		c.reject(ctx, d)
		c.record(OutcomeQuarantined)
		return
	}

	if !strings.EqualFold(path.Ext(key), ".pdf") {
		c.logger.Info(ctx, "skipping non-pdf object", "object", key)
		c.ack(ctx, d)
		c.record(OutcomeSkipped)
		return
	}

	if _, err := c.pipeline.ProcessObject(ctx, key); err != nil {
		c.reject(ctx, d)
		c.record(OutcomeFailed)
		return
	}

	c.ack(ctx, d)
	c.record(OutcomeProcessed)
}

func (c *Consumer) ack(ctx context.Context, d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		c.logger.Error(ctx, "ack failed", "error", err, "delivery_tag", d.DeliveryTag)
	}
}

func (c *Consumer) reject(ctx context.Context, d amqp.Delivery) {
	if err := d.Nack(false, false); err != nil {
		c.logger.Error(ctx, "nack failed", "error", err, "delivery_tag", d.DeliveryTag)
	}
}

func (c *Consumer) record(outcome string) {
	if c.metrics != nil {
		c.metrics.RecordConsumerEvent(outcome)
	}
}

func declareTopology(ch *amqp.Channel, cfg config.BrokerConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, cfg.ExchangeType, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %q: %w", cfg.Exchange, err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %q: %w", cfg.Queue, err)
	}
	if err := ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %q to %q: %w", cfg.Queue, cfg.Exchange, err)
	}
	return nil
}
