package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"restaurant_ordering_backend/internal/models"
	"restaurant_ordering_backend/pkg/utils"

	"github.com/rabbitmq/amqp091-go"
)

// errMalformed marks messages that can never be processed and must not be requeued.
var errMalformed = errors.New("malformed order event")

// EventSink receives order events relayed from other instances.
type EventSink interface {
	Publish(event models.OrderStatusEvent) int
}

// Consumer relays order events published by other instances into the local sink.
type Consumer struct {
	conn       *Connection
	instanceID string
	sink       EventSink
}

// NewConsumer creates a consumer for the order events exchange.
func NewConsumer(conn *Connection, instanceID string, sink EventSink) *Consumer {
	return &Consumer{conn: conn, instanceID: instanceID, sink: sink}
}

// Run consumes until ctx is cancelled, reconnecting when the broker closes the channel.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			utils.LogInfo("Order event consumer stopped")
			return ctx.Err()
		}
		utils.LogError(err, "Order event consumer interrupted, reconnecting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	ch, err := c.conn.NewChannel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	// Every instance gets its own server-named queue, removed when the instance disconnects.
	q, err := ch.QueueDeclare(
		"",    // name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", OrderEventsExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", q.Name, err)
	}
	if err := ch.Qos(16, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		q.Name, // queue
		"",     // consumer
		false,  // auto-ack
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}
	utils.LogInfo("Order event consumer started", map[string]interface{}{"queue": q.Name})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.processDelivery(d)
		}
	}
}

func (c *Consumer) processDelivery(d amqp091.Delivery) {
	err := c.handle(d.AppId, d.Body)
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			utils.LogError(ackErr, "Failed to ack order event")
		}
	case errors.Is(err, errMalformed):
		utils.LogError(err, "Discarding order event", map[string]interface{}{"message_size": len(d.Body)})
		if nackErr := d.Nack(false, false); nackErr != nil {
			utils.LogError(nackErr, "Failed to nack order event")
		}
	default:
		if nackErr := d.Nack(false, true); nackErr != nil {
			utils.LogError(nackErr, "Failed to nack order event")
		}
	}
}

// handle decodes one message and forwards it unless this instance published it.
func (c *Consumer) handle(appID string, body []byte) error {
	if appID == c.instanceID {
		return nil
	}
	var event models.OrderStatusEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if event.OrderNumber == "" || !event.Status.IsValid() {
		return fmt.Errorf("%w: missing order number or status", errMalformed)
	}
	c.sink.Publish(event)
	return nil
}
