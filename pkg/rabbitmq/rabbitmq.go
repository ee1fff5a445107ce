package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"marketplace/pkg/logger"
)

// Connection manages a RabbitMQ connection and its channel
type Connection struct {
	url       string
	conn      *amqp.Connection
	channel   *amqp.Channel
	log       *logger.Logger
	mu        sync.RWMutex
	closeChan chan struct{}
	closeOnce sync.Once
}

// NewConnection creates a new RabbitMQ connection
func NewConnection(url string, log *logger.Logger) (*Connection, error) {
	c := &Connection{
		url:       url,
		log:       log,
		closeChan: make(chan struct{}),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	c.conn = conn
	c.channel = ch

	c.log.Info("connected to RabbitMQ")
	return nil
}

// Channel returns the current channel
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// Close closes the connection. It is safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeChan)

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.channel != nil {
			c.channel.Close()
		}
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

func declareTopic(ch *amqp.Channel, exchange string) error {
	return ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
}

// Publisher publishes messages to RabbitMQ
type Publisher struct {
	conn     *Connection
	exchange string
	log      *logger.Logger
}

// NewPublisher creates a new publisher
func NewPublisher(conn *Connection, exchange string, log *logger.Logger) (*Publisher, error) {
	if err := declareTopic(conn.Channel(), exchange); err != nil {
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:     conn,
		exchange: exchange,
		log:      log,
	}, nil
}

// Publish publishes a message
func (p *Publisher) Publish(ctx context.Context, routingKey string, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	traceID := logger.GetTraceID(ctx)

	err = p.conn.Channel().PublishWithContext(
		ctx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			Body:          body,
			DeliveryMode:  amqp.Persistent,
			Timestamp:     time.Now(),
			CorrelationId: traceID,
			Headers: amqp.Table{
				"x-trace-id": traceID,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.log.WithContext(ctx).Debug("message published",
		zap.String("exchange", p.exchange),
		zap.String("routing_key", routingKey),
		zap.String("trace_id", traceID),
	)

	return nil
}

// permanentError marks a handler failure that retrying cannot fix
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the consumer dead-letters the message instead of
// requeueing it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped by Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Consumer consumes messages from RabbitMQ
type Consumer struct {
	conn        *Connection
	queue       string
	exchange    string
	routingKeys []string
	log         *logger.Logger
	retryDelay  time.Duration
}

// NewConsumer declares the exchange, its dead-letter exchange and the queue,
// then binds the queue for every routing key.
func NewConsumer(conn *Connection, queue, exchange string, routingKeys []string, log *logger.Logger) (*Consumer, error) {
	ch := conn.Channel()
	dlx := exchange + ".dlx"

	if err := declareTopic(ch, exchange); err != nil {
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := declareTopic(ch, dlx); err != nil {
		return nil, fmt.Errorf("failed to declare dead-letter exchange: %w", err)
	}

	// Parking queue for dead-lettered messages
	if _, err := ch.QueueDeclare(queue+".dead", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare dead-letter queue: %w", err)
	}
	if err := ch.QueueBind(queue+".dead", "#", dlx, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind dead-letter queue: %w", err)
	}

	_, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-dead-letter-exchange": dlx,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	// Bind queue to exchange for each routing key
	for _, key := range routingKeys {
		err = ch.QueueBind(queue, key, exchange, false, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to bind queue: %w", err)
		}
	}

	return &Consumer{
		conn:        conn,
		queue:       queue,
		exchange:    exchange,
		routingKeys: routingKeys,
		log:         log,
		retryDelay:  time.Second,
	}, nil
}

// MessageHandler is a function that handles a message
type MessageHandler func(ctx context.Context, body []byte) error

// Consume starts consuming messages in a goroutine until ctx is done.
// Handler errors requeue the message after a delay unless they are Permanent.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	msgs, err := c.conn.Channel().Consume(
		c.queue, // queue
		"",      // consumer
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				c.handle(ctx, msg, handler)
			}
		}
	}()

	c.log.Info("consumer started",
		zap.String("queue", c.queue),
		zap.Strings("routing_keys", c.routingKeys),
	)

	return nil
}

func (c *Consumer) handle(ctx context.Context, msg amqp.Delivery, handler MessageHandler) {
	traceID := ""
	if tid, ok := msg.Headers["x-trace-id"].(string); ok {
		traceID = tid
	}
	msgCtx := logger.WithTraceIDContext(ctx, traceID)

	c.log.WithContext(msgCtx).Debug("message received",
		zap.String("queue", c.queue),
		zap.String("routing_key", msg.RoutingKey),
	)

	err := handler(msgCtx, msg.Body)
	if err == nil {
		msg.Ack(false)
		return
	}

	if IsPermanent(err) {
		c.log.WithContext(msgCtx).Error("dropping message to dead-letter exchange",
			zap.Error(err),
			zap.String("queue", c.queue),
		)
		msg.Nack(false, false)
		return
	}

	c.log.WithContext(msgCtx).Error("failed to handle message",
		zap.Error(err),
		zap.String("queue", c.queue),
	)
	select {
	case <-ctx.Done():
	case <-time.After(c.retryDelay):
	}
	msg.Nack(false, true)
}
