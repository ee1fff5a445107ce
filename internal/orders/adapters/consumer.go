package adapters

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"marketplace/internal/orders/domain"
	"marketplace/pkg/errors"
	"marketplace/pkg/events"
	"marketplace/pkg/logger"
	"marketplace/pkg/rabbitmq"
)

// DeliveryQueue is the queue the orders service reads delivery updates from
const DeliveryQueue = "orders.delivery-completed"

// MarkDelivered moves an order to delivered on behalf of actor
type MarkDelivered func(ctx context.Context, orderID uint, actor domain.Actor, notes string) error

// DeliveryCompletedConsumer consumes DeliveryCompleted events
type DeliveryCompletedConsumer struct {
	consumer *rabbitmq.Consumer
	deliver  MarkDelivered
	log      *logger.Logger
}

// NewDeliveryCompletedConsumer creates a new consumer for DeliveryCompleted events
func NewDeliveryCompletedConsumer(conn *rabbitmq.Connection, deliver MarkDelivered, log *logger.Logger) (*DeliveryCompletedConsumer, error) {
	consumer, err := rabbitmq.NewConsumer(
		conn,
		DeliveryQueue,
		events.ExchangeDelivery,
		[]string{events.RoutingKeyDeliveryCompleted},
		log,
	)
	if err != nil {
		return nil, err
	}

	return &DeliveryCompletedConsumer{
		consumer: consumer,
		deliver:  deliver,
		log:      log,
	}, nil
}

// Start starts consuming DeliveryCompleted events
func (c *DeliveryCompletedConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

// handleMessage acks business rejections, dead-letters undecodable
// messages and requeues everything else.
func (c *DeliveryCompletedConsumer) handleMessage(ctx context.Context, body []byte) error {
	var event events.Envelope[events.DeliveryCompletedPayload]
	if err := json.Unmarshal(body, &event); err != nil {
		return rabbitmq.Permanent(fmt.Errorf("decode delivery event: %w", err))
	}
	if event.Payload.OrderID == 0 {
		return rabbitmq.Permanent(fmt.Errorf("delivery event without order_id"))
	}

	actor := domain.Actor{ID: event.Payload.PartnerID, Type: domain.ActorDeliveryPartner}
	err := c.deliver(ctx, event.Payload.OrderID, actor, event.Payload.Notes)

	if err != nil {
		switch errors.Code(err) {
		case errors.CodeConcurrencyConflict, errors.CodeInternal:
			return err
		}
		c.log.WithContext(ctx).Warn("delivery event rejected",
			zap.Error(err),
			zap.Uint("order_id", event.Payload.OrderID),
		)
		return nil
	}

	c.log.WithContext(ctx).Info("order marked delivered",
		zap.Uint("order_id", event.Payload.OrderID),
		zap.Uint("partner_id", event.Payload.PartnerID),
	)
	return nil
}
