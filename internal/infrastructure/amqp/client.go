package amqp

import (
	"fmt"

	"github.com/go-notify/internal/config"
	"github.com/streadway/amqp"
)

const exchangeKind = "topic"

// Dial connects to the broker and declares the durable topic exchange every
// publisher and subscriber in the process shares.
func Dial(cfg *config.Config) (*amqp.Connection, error) {
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(cfg.AMQPExchange, exchangeKind, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.AMQPExchange, err)
	}
	return conn, nil
}
