package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

// Signal is the wire body of a dispatch signal.
type Signal struct {
	ItemID string `json:"item_id"`
}

// AMQPQueue carries signals over durable RabbitMQ queues, one queue per topic.
type AMQPQueue struct {
	conn *amqp.Connection
	mu   sync.Mutex
	pub  *amqp.Channel
	log  zerolog.Logger
}

func NewAMQPQueue(url string, log zerolog.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	return &AMQPQueue{conn: conn, pub: ch, log: log}, nil
}

func declare(ch *amqp.Channel, topic string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
}

func (q *AMQPQueue) Publish(ctx context.Context, topic, itemID string) error {
	body, err := json.Marshal(Signal{ItemID: itemID})
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, err := declare(q.pub, topic); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", topic, err)
	}
	return q.pub.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Subscribe consumes topic with manual acks until ctx is cancelled. A failed
// delivery is dropped rather than requeued; the periodic scan picks the item up.
func (q *AMQPQueue) Subscribe(ctx context.Context, topic string, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open a channel: %w", err)
	}
	if _, err := declare(ch, topic); err != nil {
		ch.Close()
		return fmt.Errorf("failed to declare queue %s: %w", topic, err)
	}
	msgs, err := ch.Consume(
		topic,
		"",
		false, // autoAck
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					q.log.Warn().Str("topic", topic).Msg("delivery channel closed")
					return
				}
				handleDelivery(ctx, q.log, d.Body, d, handler)
			}
		}
	}()
	return nil
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func handleDelivery(ctx context.Context, log zerolog.Logger, body []byte, ack acknowledger, handler Handler) {
	var sig Signal
	if err := json.Unmarshal(body, &sig); err != nil || sig.ItemID == "" {
		log.Warn().Bytes("body", body).Msg("invalid dispatch signal")
		_ = ack.Ack(false)
		return
	}
	if err := handler(ctx, sig.ItemID); err != nil {
		log.Warn().Err(err).Str("item_id", sig.ItemID).Msg("signal handler failed")
		_ = ack.Nack(false, false)
		return
	}
	_ = ack.Ack(false)
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pub.Close()
	return q.conn.Close()
}

var _ Queue = (*AMQPQueue)(nil)
