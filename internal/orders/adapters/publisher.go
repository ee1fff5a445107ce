package adapters

import (
	"context"
	"fmt"
	"time"

	"marketplace/internal/orders/domain"
	"marketplace/pkg/events"
	"marketplace/pkg/logger"
)

// MessagePublisher is the broker side of event publishing, satisfied by
// *rabbitmq.Publisher
type MessagePublisher interface {
	Publish(ctx context.Context, routingKey string, message interface{}) error
}

// RabbitMQPublisher implements EventPublisher using RabbitMQ
type RabbitMQPublisher struct {
	publisher MessagePublisher
	log       *logger.Logger
}

// NewRabbitMQPublisher creates a new RabbitMQ event publisher
func NewRabbitMQPublisher(publisher MessagePublisher, log *logger.Logger) *RabbitMQPublisher {
	return &RabbitMQPublisher{
		publisher: publisher,
		log:       log,
	}
}

// Publish sends event to the orders exchange under its event name
func (p *RabbitMQPublisher) Publish(ctx context.Context, event domain.Event) error {
	msg, err := toEnvelope(event, logger.GetTraceID(ctx))
	if err != nil {
		return err
	}
	return p.publisher.Publish(ctx, event.EventName(), msg)
}

func toEnvelope(event domain.Event, traceID string) (interface{}, error) {
	name, at := event.EventName(), event.OccurredAt()

	switch e := event.(type) {
	case domain.OrderCreated:
		return events.New(name, at, traceID, events.OrderCreatedPayload{
			OrderID:       e.OrderID,
			CustomerID:    e.CustomerID,
			TotalAmount:   e.TotalAmount,
			FinalAmount:   e.FinalAmount,
			PaymentMethod: string(e.PaymentMethod),
			DeliveryType:  string(e.DeliveryType),
		}), nil
	case domain.OrderStatusChanged:
		return events.New(name, at, traceID, events.OrderStatusChangedPayload{
			OrderID:       e.OrderID,
			CustomerID:    e.CustomerID,
			OldStatus:     string(e.OldStatus),
			NewStatus:     string(e.NewStatus),
			ChangedByID:   e.ChangedByID,
			ChangedByType: string(e.ChangedByType),
		}), nil
	case domain.OrderCancelled:
		return events.New(name, at, traceID, events.OrderCancelledPayload{
			OrderID:    e.OrderID,
			CustomerID: e.CustomerID,
			Reason:     e.Reason,
		}), nil
	case domain.CashbackEarned:
		var expiry *time.Time
		if !e.ExpiryDate.IsZero() {
			expiry = &e.ExpiryDate
		}
		return events.New(name, at, traceID, events.CashbackPayload{
			CustomerID: e.CustomerID,
			OrderID:    e.OrderID,
			Amount:     e.Amount,
			ExpiryDate: expiry,
		}), nil
	case domain.CashbackRedeemed:
		return events.New(name, at, traceID, events.CashbackPayload{
			CustomerID: e.CustomerID,
			OrderID:    e.OrderID,
			Amount:     e.Amount,
		}), nil
	case domain.CashbackExpiring:
		return events.New(name, at, traceID, events.CashbackPayload{
			CustomerID:    e.CustomerID,
			TransactionID: e.TransactionID,
			Amount:        e.Amount,
			ExpiryDate:    &e.ExpiryDate,
		}), nil
	case domain.ProductStockUpdated:
		return events.New(name, at, traceID, events.StockUpdatedPayload{
			ProductID: e.ProductID,
			OldCount:  e.OldCount,
			NewCount:  e.NewCount,
			Reason:    e.Reason,
		}), nil
	case domain.ProductOutOfStock:
		return events.New(name, at, traceID, events.OutOfStockPayload{
			ProductID: e.ProductID,
			Name:      e.Name,
		}), nil
	}
	return nil, fmt.Errorf("no wire format for event %q", name)
}
