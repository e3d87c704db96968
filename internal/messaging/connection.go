package messaging

import (
	"fmt"
	"sync"
	"time"

	"restaurant_ordering_backend/pkg/utils"

	"github.com/rabbitmq/amqp091-go"
)

// OrderEventsExchange is the fanout exchange every instance publishes order status events to.
const OrderEventsExchange = "order_status_fanout"

const maxDialAttempts = 5

// Connection wraps a RabbitMQ connection with reconnection logic.
type Connection struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	url     string
}

// Dial connects to RabbitMQ and declares the order events exchange.
func Dial(url string) (*Connection, error) {
	c := &Connection{url: url}
	if err := c.connect(); err != nil {
		return nil, fmt.Errorf("failed to establish initial connection: %w", err)
	}
	return c, nil
}

func (c *Connection) connect() error {
	var err error
	for i := 0; i < maxDialAttempts; i++ {
		c.conn, err = amqp091.Dial(c.url)
		if err == nil {
			c.channel, err = c.conn.Channel()
			if err == nil {
				if err = declareTopology(c.channel); err == nil {
					return nil
				}
				utils.LogError(err, "Failed to declare RabbitMQ topology")
			}
			c.close()
		}

		if i < maxDialAttempts-1 {
			wait := time.Duration(i+1) * 2 * time.Second
			utils.LogWarn("Failed to connect to RabbitMQ, retrying", map[string]interface{}{
				"attempt": i + 1, "wait": wait.String(), "error": err.Error(),
			})
			time.Sleep(wait)
		}
	}
	return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxDialAttempts, err)
}

func declareTopology(ch *amqp091.Channel) error {
	err := ch.ExchangeDeclare(
		OrderEventsExchange, // name
		"fanout",            // type
		true,                // durable
		false,               // auto-deleted
		false,               // internal
		false,               // no-wait
		nil,                 // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare %s exchange: %w", OrderEventsExchange, err)
	}
	return nil
}

// Channel returns the shared publishing channel, reconnecting first if the connection dropped.
func (c *Connection) Channel() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed() {
		c.close()
		if err := c.connect(); err != nil {
			return nil, err
		}
	}
	return c.channel, nil
}

// NewChannel opens a dedicated channel, used by consumers.
func (c *Connection) NewChannel() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed() {
		c.close()
		if err := c.connect(); err != nil {
			return nil, err
		}
	}
	return c.conn.Channel()
}

func (c *Connection) isClosed() bool {
	return c.conn == nil || c.conn.IsClosed()
}

// Close closes the connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.close()
}

func (c *Connection) close() error {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
