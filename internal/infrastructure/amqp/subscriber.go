package amqp

import (
	"context"
	"fmt"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Subscriber binds one durable queue per subscription to a topic and runs its
// handler for every delivery. A nil handler error acks; any other error nacks
// with requeue so the broker redelivers.
type Subscriber struct {
	conn     *amqp.Connection
	exchange string
	prefetch int
	log      *zap.Logger
	group    errgroup.Group
}

func NewSubscriber(conn *amqp.Connection, exchange string, prefetch int, log *zap.Logger) *Subscriber {
	return &Subscriber{conn: conn, exchange: exchange, prefetch: prefetch, log: log.Named("amqp")}
}

// Subscribe starts consuming subscription in the background until ctx is done.
func (s *Subscriber) Subscribe(ctx context.Context, subscription, topic string, handle func(context.Context, []byte) error) error {
	ch, err := s.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel for %s: %w", subscription, err)
	}
	if err := ch.Qos(s.prefetch, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("set qos for %s: %w", subscription, err)
	}
	q, err := ch.QueueDeclare(subscription, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("declare queue %s: %w", subscription, err)
	}
	if err := ch.QueueBind(q.Name, topic, s.exchange, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("bind %s to %s: %w", subscription, topic, err)
	}
	deliveries, err := ch.Consume(q.Name, subscription, false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consume %s: %w", subscription, err)
	}

	log := s.log.With(zap.String("subscription", subscription), zap.String("topic", topic))
	s.group.Go(func() error {
		defer ch.Close()
		return consume(ctx, deliveries, handle, log)
	})
	log.Info("subscribed")
	return nil
}

// Wait blocks until every subscription stops and returns the first failure.
func (s *Subscriber) Wait() error {
	return s.group.Wait()
}

type delivery struct {
	ack  amqp.Acknowledger
	body []byte
	id   string
}

func consume(ctx context.Context, deliveries <-chan amqp.Delivery, handle func(context.Context, []byte) error, log *zap.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("delivery channel closed")
			}
			dispatch(ctx, delivery{ack: d.Acknowledger, body: d.Body, id: d.MessageId}, d.DeliveryTag, handle, log)
		}
	}
}

func dispatch(ctx context.Context, d delivery, tag uint64, handle func(context.Context, []byte) error, log *zap.Logger) {
	if err := handle(ctx, d.body); err != nil {
		log.Error("handler failed, requeueing", zap.String("message_id", d.id), zap.Error(err))
		if nerr := d.ack.Nack(tag, false, true); nerr != nil {
			log.Error("nack failed", zap.Error(nerr))
		}
		return
	}
	if aerr := d.ack.Ack(tag, false); aerr != nil {
		log.Error("ack failed", zap.String("message_id", d.id), zap.Error(aerr))
	}
}
