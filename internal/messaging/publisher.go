package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"restaurant_ordering_backend/internal/models"
	"restaurant_ordering_backend/pkg/utils"

	"github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// Publisher broadcasts order status events to every instance through the fanout exchange.
type Publisher struct {
	conn       *Connection
	instanceID string
}

// NewPublisher creates a publisher that stamps messages with instanceID so the local
// consumer can skip its own events.
func NewPublisher(conn *Connection, instanceID string) *Publisher {
	return &Publisher{conn: conn, instanceID: instanceID}
}

func newEventPublishing(event models.OrderStatusEvent, instanceID string) (amqp091.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("failed to marshal order event: %w", err)
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Transient,
		Timestamp:    time.Now(),
		AppId:        instanceID,
		Type:         string(event.Status),
	}, nil
}

// NotifyOrderStatus publishes event. It implements realtime.Notifier.
func (p *Publisher) NotifyOrderStatus(ctx context.Context, event models.OrderStatusEvent) error {
	publishing, err := newEventPublishing(event, p.instanceID)
	if err != nil {
		return err
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to reconnect: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = ch.PublishWithContext(ctx,
		OrderEventsExchange, // exchange
		"",                  // routing key (ignored for fanout)
		false,               // mandatory
		false,               // immediate
		publishing,
	)
	if err != nil {
		utils.LogError(err, "Failed to publish order event", map[string]interface{}{
			"order_number": event.OrderNumber, "status": event.Status,
		})
		return fmt.Errorf("failed to publish order event: %w", err)
	}
	utils.LogDebug("Order event published", map[string]interface{}{
		"order_number": event.OrderNumber, "status": event.Status, "message_size": len(publishing.Body),
	})
	return nil
}
