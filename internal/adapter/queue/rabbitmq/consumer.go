// Package rabbitmq consumes vulnerability analysis jobs from RabbitMQ.
//
// The consumer drains one named queue a single message at a time and turns
// every delivery into exactly one acknowledgment decision. Connection and
// channel faults never terminate the loop; they trigger a close-reconnect
// cycle with a fixed delay.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-vuln-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-vuln-analyzer/internal/config"
	"github.com/fairyhunter13/ai-vuln-analyzer/internal/domain"
	obsctx "github.com/fairyhunter13/ai-vuln-analyzer/internal/observability"
)

// Consumer drains the analysis queue and drives the analyzer and sink.
type Consumer struct {
	cfg      config.Config
	analyzer domain.Analyzer
	sink     domain.ResultSink
	dial     DialFunc

	mu      sync.Mutex
	conn    Connection
	channel Channel

	running   atomic.Bool
	connected atomic.Bool

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewConsumer constructs a Consumer that dials the broker with amqp091.
func NewConsumer(cfg config.Config, analyzer domain.Analyzer, sink domain.ResultSink) *Consumer {
	return NewConsumerWithDial(cfg, analyzer, sink, Dial)
}

// NewConsumerWithDial constructs a Consumer with a custom dial function.
// Tests use it to run the lifecycle against fake broker handles.
func NewConsumerWithDial(cfg config.Config, analyzer domain.Analyzer, sink domain.ResultSink, dial DialFunc) *Consumer {
	return &Consumer{
		cfg:      cfg,
		analyzer: analyzer,
		sink:     sink,
		dial:     dial,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run drives the consume loop until Stop is called or ctx is canceled. Call
// it at most once, typically on its own goroutine. While the stop signal has
// not fired, the loop survives every broker fault by closing its handles and
// reconnecting after ReconnectDelay.
func (c *Consumer) Run(ctx context.Context) {
	defer close(c.done)
	defer c.closeHandles()

	c.running.Store(true)
	defer c.running.Store(false)

	slog.Info("worker starting", slog.String("queue", c.cfg.QueueName))

	for {
		if c.stopping(ctx) {
			return
		}

		deliveries, closed, err := c.connect()
		if err != nil {
			slog.Error("failed to connect to rabbitmq",
				slog.Any("error", err),
				slog.Duration("retry_in", c.cfg.ReconnectDelay))
			c.closeHandles()
			observability.BrokerReconnectsTotal.Inc()
			if !c.sleepBeforeReconnect(ctx) {
				return
			}
			continue
		}

		err = c.consume(ctx, deliveries, closed)
		c.closeHandles()
		if err == nil {
			return
		}

		slog.Error("consume loop error",
			slog.Any("error", err),
			slog.Duration("retry_in", c.cfg.ReconnectDelay))
		observability.BrokerReconnectsTotal.Inc()
		if !c.sleepBeforeReconnect(ctx) {
			return
		}
	}
}

// Stop requests shutdown. It is idempotent, safe to call from any goroutine,
// and closes the broker handles best-effort so a blocked delivery wait is
// released even when the broker is unreachable.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		slog.Info("stopping worker")
		c.running.Store(false)
		close(c.stop)
		c.closeHandles()
	})
}

// IsRunning reports whether the consume loop is active and not stopping.
func (c *Consumer) IsRunning() bool { return c.running.Load() }

// IsConnected reports whether the consumer holds a live broker connection.
func (c *Consumer) IsConnected() bool {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	return c.connected.Load() && conn != nil && !conn.IsClosed()
}

// Done returns a channel that is closed once the consume loop has fully
// exited and released its handles.
func (c *Consumer) Done() <-chan struct{} { return c.done }

// Alive reports whether the consume loop has not yet exited.
func (c *Consumer) Alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// QueueStats inspects the consumed queue via a passive declare on a
// short-lived probe channel, leaving the consuming channel's QoS and
// consumer state untouched.
func (c *Consumer) QueueStats(_ context.Context) (domain.QueueStats, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return domain.QueueStats{}, fmt.Errorf("op=rabbitmq.QueueStats: %w: not connected", domain.ErrUpstreamUnavailable)
	}

	ch, err := conn.Channel()
	if err != nil {
		return domain.QueueStats{}, fmt.Errorf("op=rabbitmq.QueueStats: open probe channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	q, err := ch.QueueDeclarePassive(c.cfg.QueueName, true, false, false, false, nil)
	if err != nil {
		return domain.QueueStats{}, fmt.Errorf("op=rabbitmq.QueueStats: inspect queue: %w", err)
	}
	return domain.QueueStats{Messages: q.Messages, Consumers: q.Consumers}, nil
}

// connect dials the broker, declares the queue durable, limits the channel
// to one unacknowledged message, and starts the delivery stream. Close
// notifications from both handles feed the same channel so either fault
// ends the consume phase.
func (c *Consumer) connect() (<-chan amqp.Delivery, <-chan *amqp.Error, error) {
	slog.Info("connecting to rabbitmq", slog.String("queue", c.cfg.QueueName))

	conn, err := c.dial(c.cfg.RabbitMQURL, amqp.Config{
		Heartbeat: c.cfg.RabbitMQHeartbeat,
		Dial:      amqp.DefaultDial(c.cfg.RabbitMQDialTime),
		Locale:    "en_US",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("op=rabbitmq.connect: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("op=rabbitmq.connect: open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(c.cfg.QueueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("op=rabbitmq.connect: declare queue: %w", err)
	}

	// Strict one-at-a-time processing: a second message is not delivered
	// until the first is acknowledged.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("op=rabbitmq.connect: set qos: %w", err)
	}

	tag := "ai-vuln-analyzer-" + uuid.NewString()
	deliveries, err := ch.Consume(c.cfg.QueueName, tag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("op=rabbitmq.connect: start consume: %w", err)
	}

	closed := make(chan *amqp.Error, 2)
	conn.NotifyClose(closed)
	ch.NotifyClose(closed)

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()
	c.connected.Store(true)
	observability.SetBrokerConnected(true)

	slog.Info("connected to rabbitmq",
		slog.String("queue", c.cfg.QueueName),
		slog.String("consumer_tag", tag))
	return deliveries, closed, nil
}

// consume blocks on the delivery stream until stop, context cancelation, or
// a broker fault. A nil return means shutdown; a non-nil return means the
// caller should reconnect.
func (c *Consumer) consume(ctx context.Context, deliveries <-chan amqp.Delivery, closed <-chan *amqp.Error) error {
	slog.Info("worker is running and waiting for messages", slog.String("queue", c.cfg.QueueName))

	for {
		select {
		case <-c.stop:
			return nil
		case <-ctx.Done():
			return nil
		case amqpErr := <-closed:
			if c.stopping(ctx) {
				return nil
			}
			if amqpErr == nil {
				return fmt.Errorf("op=rabbitmq.consume: broker handle closed")
			}
			return fmt.Errorf("op=rabbitmq.consume: broker closed: %w", amqpErr)
		case d, ok := <-deliveries:
			if !ok {
				if c.stopping(ctx) {
					return nil
				}
				return fmt.Errorf("op=rabbitmq.consume: delivery stream closed")
			}
			c.handleDelivery(ctx, d)
		}
	}
}

func (c *Consumer) stopping(ctx context.Context) bool {
	select {
	case <-c.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// handleDelivery converts one delivery into exactly one acknowledgment
// decision:
//
//	malformed body                      -> reject, no requeue
//	analysis succeeded, write landed    -> ack
//	analysis succeeded, write failed    -> reject, requeue
//	analysis failed                     -> best-effort error write, ack
//	panic                               -> reject, requeue
//
// Malformed messages are dropped without invoking the analyzer; redelivering
// them can never succeed. A failed analysis is acked so a job the analyzer
// structurally cannot complete is not redelivered forever.
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	start := time.Now()
	outcome := observability.OutcomeRequeued

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while processing delivery",
				slog.Uint64("delivery_tag", d.DeliveryTag),
				slog.Any("panic", r))
			c.reject(d, true)
			outcome = observability.OutcomeRequeued
		}
		observability.ObserveDelivery(outcome, time.Since(start))
	}()

	tracer := otel.Tracer("queue.consumer")
	ctx, span := tracer.Start(ctx, "ProcessAnalysisJob")
	defer span.End()

	var job domain.Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		slog.Error("invalid JSON in message",
			slog.Uint64("delivery_tag", d.DeliveryTag),
			slog.Any("error", err))
		c.reject(d, false)
		outcome = observability.OutcomeDiscarded
		return
	}

	ctx = obsctx.ContextWithJob(ctx, job.ScanID, job.PackageName, job.VulnerabilityID)
	log := obsctx.LoggerFromContext(ctx)
	log.Info("processing job")

	result := c.analyzer.AnalyzeVulnerability(ctx, job)

	if result.Success {
		if c.sink.Record(ctx, job.Ref(), result) {
			log.Info("analysis saved")
			c.ack(d)
			outcome = observability.OutcomeAcked
			return
		}
		log.Error("failed to save analysis, requeueing")
		c.reject(d, true)
		outcome = observability.OutcomeRequeued
		return
	}

	// Persist the failure reason; its own write outcome is deliberately not
	// checked on this branch.
	c.sink.Record(ctx, job.Ref(), result)
	reason := ""
	if result.Error != nil {
		reason = *result.Error
	}
	log.Warn("analysis failed, error saved", slog.String("analysis_error", reason))
	c.ack(d)
	outcome = observability.OutcomeAcked
}

func (c *Consumer) ack(d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		slog.Error("failed to ack delivery",
			slog.Uint64("delivery_tag", d.DeliveryTag),
			slog.Any("error", err))
	}
}

func (c *Consumer) reject(d amqp.Delivery, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		slog.Error("failed to nack delivery",
			slog.Uint64("delivery_tag", d.DeliveryTag),
			slog.Bool("requeue", requeue),
			slog.Any("error", err))
	}
}

// closeHandles closes the channel and connection best-effort. Safe to call
// repeatedly and from any goroutine.
func (c *Consumer) closeHandles() {
	c.mu.Lock()
	ch, conn := c.channel, c.conn
	c.channel, c.conn = nil, nil
	c.mu.Unlock()

	if ch != nil {
		if err := ch.Close(); err != nil {
			slog.Warn("error closing channel", slog.Any("error", err))
		}
	}
	if conn != nil && !conn.IsClosed() {
		if err := conn.Close(); err != nil {
			slog.Warn("error closing connection", slog.Any("error", err))
		}
	}

	c.connected.Store(false)
	observability.SetBrokerConnected(false)
}

// sleepBeforeReconnect waits the fixed reconnect delay, returning false when
// shutdown was requested while waiting.
func (c *Consumer) sleepBeforeReconnect(ctx context.Context) bool {
	t := time.NewTimer(c.cfg.ReconnectDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.stop:
		return false
	case <-ctx.Done():
		return false
	}
}
