package messaging

import (
	"encoding/json"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/darkswapfoundation/darkswap-sub008/internal/metrics"
)

// Publisher pushes domain events (order.placed, trade.executed,
// order.filled, order.cancelled, order.expired, replica.conflict) to a
// RabbitMQ topic exchange for notification and analytics consumers.
//
// The matching core stays purely computational; everything downstream of a
// match hears about it through these events.
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	breaker  *CircuitBreaker
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewPublisher initializes a RabbitMQ publisher with the given exchange.
func NewPublisher(amqpURL, exchange string, logger *zap.Logger, m *metrics.Metrics) (*Publisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	// Topic exchange for routing patterns like order.* and replica.*.
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true, // durable
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		breaker:  NewCircuitBreaker(5, 2, 30*time.Second),
		logger:   logger,
		metrics:  m,
	}, nil
}

// Publish sends an event message with the given routing key.
func (p *Publisher) Publish(routingKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	err = p.breaker.Execute(func() error {
		return p.channel.Publish(
			p.exchange,
			routingKey,
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType: "application/json",
				Body:        body,
			},
		)
	})
	if err != nil {
		return err
	}

	if p.metrics != nil {
		p.metrics.MQMessagesPublished.WithLabelValues(routingKey).Inc()
	}
	p.logger.Debug("event published", zap.String("routing_key", routingKey))
	return nil
}

// Close shuts down RabbitMQ resources gracefully.
func (p *Publisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
