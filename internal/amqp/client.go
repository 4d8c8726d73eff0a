// Package amqp is the event bus between the HTTP application and the
// out-of-band worker: settings flips and payroll events publish generation
// triggers here, entry inserts publish mirror events, and the worker
// consumes both.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	triggerQueue string
	mirrorQueue  string
}

func NewClient(url, exchangeName, triggerQueue, mirrorQueue string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		triggerQueue: triggerQueue,
		mirrorQueue:  mirrorQueue,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queues: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, queue := range []string{c.triggerQueue, c.mirrorQueue} {
		_, err = c.channel.QueueDeclare(
			queue,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}

		// Routing key equals the queue name on a direct exchange.
		if err := c.channel.QueueBind(queue, queue, c.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}

	return nil
}

// PublishGenerationTrigger publishes a generation trigger for the worker.
func (c *Client) PublishGenerationTrigger(ctx context.Context, owner, trigger string, years []int) error {
	msg := NewGenerationTriggerMessage(owner, trigger, years)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal trigger message: %w", err)
	}

	if err := c.publish(ctx, c.triggerQueue, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published generation trigger",
		"owner", owner,
		"trigger", trigger,
		"years", years,
		"queue", c.triggerQueue)

	return nil
}

// PublishEntryMirror publishes a mirror event for a freshly created entry.
func (c *Client) PublishEntryMirror(ctx context.Context, owner string, entryID int64) error {
	msg := NewEntryMirrorMessage(owner, entryID)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal mirror message: %w", err)
	}

	if err := c.publish(ctx, c.mirrorQueue, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published entry mirror event",
		"owner", owner,
		"entry_id", entryID,
		"queue", c.mirrorQueue)

	return nil
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.channel.PublishWithContext(
		ctx,
		c.exchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// ConsumeGenerationTriggers delivers trigger messages to the handler until
// the context is cancelled. Handler errors requeue the delivery; unparseable
// messages are dropped.
func (c *Client) ConsumeGenerationTriggers(ctx context.Context, handler func(*GenerationTriggerMessage) error) error {
	return consume(ctx, c.channel, c.triggerQueue, GenerationTriggerMessageFromJSON, handler)
}

// ConsumeEntryMirrors delivers mirror messages to the handler until the
// context is cancelled.
func (c *Client) ConsumeEntryMirrors(ctx context.Context, handler func(*EntryMirrorMessage) error) error {
	return consume(ctx, c.channel, c.mirrorQueue, EntryMirrorMessageFromJSON, handler)
}

func consume[M any](
	ctx context.Context,
	channel *amqp091.Channel,
	queue string,
	decode func([]byte) (*M, error),
	handler func(*M) error,
) error {
	msgs, err := channel.Consume(
		queue,
		"",    // consumer
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("start consuming %s: %w", queue, err)
	}

	slog.InfoContext(ctx, "Started consuming", "queue", queue)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping consumption", "queue", queue, "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed for %s", queue)
			}

			msg, err := decode(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal message", "queue", queue, "error", err)
				delivery.Nack(false, false) // drop, never parseable
				continue
			}

			if err := handler(msg); err != nil {
				slog.ErrorContext(ctx, "Failed to handle message", "queue", queue, "error", err)
				delivery.Nack(false, true) // requeue for retry
				continue
			}

			delivery.Ack(false)
		}
	}
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
