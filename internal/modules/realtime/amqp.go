// README: RabbitMQ push channel; an exclusive queue bound to the identity's routing key.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

var errDeliveriesClosed = errors.New("amqp deliveries closed")

type AMQPChannel struct {
	URL      string
	Exchange string
	// RoutingPrefix is joined with the identity, e.g. "passenger" -> "passenger.<identity>".
	RoutingPrefix string
}

func (c *AMQPChannel) RoutingKey(identity string) string {
	prefix := c.RoutingPrefix
	if prefix == "" {
		prefix = "passenger"
	}
	return prefix + "." + identity
}

func (c *AMQPChannel) Open(ctx context.Context, identity string) (Stream, error) {
	conn, err := amqp.Dial(c.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	s := &amqpStream{conn: conn, ch: ch}

	if err := ch.ExchangeDeclare(
		c.Exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // args
	); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("declare %s: %w", c.Exchange, err)
	}
	queue, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queue.Name, c.RoutingKey(identity), c.Exchange, false, nil); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}
	s.deliveries, err = ch.ConsumeWithContext(ctx,
		queue.Name, // queue
		"",         // consumer tag
		true,       // auto-ack
		true,       // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("consume: %w", err)
	}
	return s, nil
}

type amqpStream struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	deliveries <-chan amqp.Delivery
	once       sync.Once
}

func (s *amqpStream) Next(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case d, ok := <-s.deliveries:
		if !ok {
			return Message{}, errDeliveriesClosed
		}
		var m Message
		if err := json.Unmarshal(d.Body, &m); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return m, nil
	}
}

func (s *amqpStream) Close() error {
	var err error
	s.once.Do(func() {
		_ = s.ch.Close()
		err = s.conn.Close()
	})
	return err
}
