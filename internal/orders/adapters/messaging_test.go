package adapters

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/orders/domain"
	apperrors "marketplace/pkg/errors"
	"marketplace/pkg/events"
	"marketplace/pkg/logger"
	"marketplace/pkg/rabbitmq"
)

type recordedMessage struct {
	routingKey string
	body       []byte
}

type recordingPublisher struct {
	messages []recordedMessage
}

func (r *recordingPublisher) Publish(ctx context.Context, routingKey string, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return err
	}
	r.messages = append(r.messages, recordedMessage{routingKey: routingKey, body: body})
	return nil
}

func TestRabbitMQPublisher_MapsEvents(t *testing.T) {
	sink := &recordingPublisher{}
	pub := NewRabbitMQPublisher(sink, logger.NewNop())
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	ctx := logger.WithTraceIDContext(context.Background(), "trace-1")

	require.NoError(t, pub.Publish(ctx, domain.OrderCreated{
		OrderID:       4,
		CustomerID:    1,
		TotalAmount:   decimal.RequireFromString("100.50"),
		FinalAmount:   decimal.RequireFromString("90.50"),
		PaymentMethod: domain.PaymentMethodCard,
		DeliveryType:  domain.DeliveryTypePickup,
		At:            at,
	}))
	require.NoError(t, pub.Publish(ctx, domain.CashbackRedeemed{CustomerID: 1, OrderID: 4, Amount: decimal.NewFromInt(10), At: at}))

	require.Len(t, sink.messages, 2)
	assert.Equal(t, events.RoutingKeyOrderCreated, sink.messages[0].routingKey)
	assert.Equal(t, events.RoutingKeyCashbackRedeemed, sink.messages[1].routingKey)

	var created events.Envelope[events.OrderCreatedPayload]
	require.NoError(t, json.Unmarshal(sink.messages[0].body, &created))
	assert.Equal(t, events.SchemaVersion, created.Version)
	assert.Equal(t, "order.created", created.EventType)
	assert.Equal(t, "trace-1", created.TraceID)
	assert.True(t, created.Timestamp.Equal(at))
	assert.Equal(t, uint(4), created.Payload.OrderID)
	assert.Equal(t, "card", created.Payload.PaymentMethod)
	assert.True(t, created.Payload.FinalAmount.Equal(decimal.RequireFromString("90.50")))

	var redeemed events.Envelope[map[string]interface{}]
	require.NoError(t, json.Unmarshal(sink.messages[1].body, &redeemed))
	assert.Equal(t, "cashback.redeemed", redeemed.EventType)
	assert.Equal(t, "10", redeemed.Payload["amount"], "money is a decimal string")
	assert.NotContains(t, redeemed.Payload, "expiry_date")
}

type unknownEvent struct{}

func (unknownEvent) EventName() string     { return "mystery" }
func (unknownEvent) OccurredAt() time.Time { return time.Time{} }

func TestRabbitMQPublisher_RejectsUnknownEvent(t *testing.T) {
	sink := &recordingPublisher{}
	pub := NewRabbitMQPublisher(sink, logger.NewNop())

	err := pub.Publish(context.Background(), unknownEvent{})

	assert.Error(t, err)
	assert.Empty(t, sink.messages)
}

func deliveryBody(t *testing.T, orderID uint) []byte {
	t.Helper()
	body, err := json.Marshal(events.New(events.RoutingKeyDeliveryCompleted, time.Now(), "", events.DeliveryCompletedPayload{
		OrderID:   orderID,
		PartnerID: 33,
		Notes:     "left at door",
	}))
	require.NoError(t, err)
	return body
}

func TestDeliveryCompletedConsumer_HandleMessage(t *testing.T) {
	tests := []struct {
		name       string
		body       func(t *testing.T) []byte
		result     error
		wantErr    bool
		permanent  bool
		wantCalled bool
	}{
		{
			name:       "delivered",
			body:       func(t *testing.T) []byte { return deliveryBody(t, 8) },
			wantCalled: true,
		},
		{
			name:       "business rejection is acked",
			body:       func(t *testing.T) []byte { return deliveryBody(t, 8) },
			result:     domain.NewInvalidTransition(domain.OrderStatusDelivered, domain.OrderStatusDelivered),
			wantCalled: true,
		},
		{
			name:       "conflict is requeued",
			body:       func(t *testing.T) []byte { return deliveryBody(t, 8) },
			result:     domain.ErrVersionConflict,
			wantErr:    true,
			wantCalled: true,
		},
		{
			name:      "garbage is dead-lettered",
			body:      func(t *testing.T) []byte { return []byte("{not json") },
			wantErr:   true,
			permanent: true,
		},
		{
			name:      "missing order id is dead-lettered",
			body:      func(t *testing.T) []byte { return deliveryBody(t, 0) },
			wantErr:   true,
			permanent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				called bool
				actor  domain.Actor
			)
			c := &DeliveryCompletedConsumer{
				deliver: func(ctx context.Context, orderID uint, a domain.Actor, notes string) error {
					called = true
					actor = a
					assert.Equal(t, uint(8), orderID)
					assert.Equal(t, "left at door", notes)
					return tt.result
				},
				log: logger.NewNop(),
			}

			err := c.handleMessage(context.Background(), tt.body(t))

			assert.Equal(t, tt.wantErr, err != nil, "err = %v", err)
			assert.Equal(t, tt.permanent, rabbitmq.IsPermanent(err))
			assert.Equal(t, tt.wantCalled, called)
			if called {
				assert.Equal(t, domain.Actor{ID: 33, Type: domain.ActorDeliveryPartner}, actor)
			}
			if tt.wantErr && !tt.permanent {
				assert.True(t, apperrors.Is(err, apperrors.CodeConcurrencyConflict))
			}
		})
	}
}
