package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQNotifier publishes notifications to a durable topic exchange. The
// notification workers consume from queues bound to that exchange.
type RabbitMQNotifier struct {
	url      string
	exchange string

	mu   sync.Mutex // Guards conn and ch; amqp channels are not safe for concurrent publish
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewRabbitMQNotifier dials the broker with exponential backoff and declares the exchange.
func NewRabbitMQNotifier(url, exchange string) (*RabbitMQNotifier, error) {
	n := &RabbitMQNotifier{url: url, exchange: exchange}
	if err := n.connect(5); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *RabbitMQNotifier) connect(attempts int) error {
	var err error
	for i := 1; i <= attempts; i++ {
		var conn *amqp.Connection
		conn, err = amqp.Dial(n.url)
		if err == nil {
			ch, chErr := conn.Channel()
			if chErr != nil {
				_ = conn.Close()
				return fmt.Errorf("failed to open channel: %w", chErr)
			}
			if declErr := ch.ExchangeDeclare(n.exchange, "topic", true, false, false, false, nil); declErr != nil {
				_ = ch.Close()
				_ = conn.Close()
				return fmt.Errorf("failed to declare exchange %s: %w", n.exchange, declErr)
			}
			n.conn, n.ch = conn, ch
			log.Printf("Connected to RabbitMQ, notifications go to exchange %s", n.exchange)
			return nil
		}

		log.Printf("RabbitMQ connect attempt %d failed: %v", i, err)
		if i < attempts {
			time.Sleep(time.Second * time.Duration(math.Pow(2, float64(i)))) // exponential backoff
		}
	}
	return fmt.Errorf("failed to connect to RabbitMQ after retries: %w", err)
}

// Notify publishes payload as JSON with channel as the routing key.
// A closed connection is re-dialled once before giving up.
func (n *RabbitMQNotifier) Notify(ctx context.Context, channel string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil || n.conn.IsClosed() {
		if err := n.connect(1); err != nil {
			return err
		}
	}

	err = n.ch.PublishWithContext(ctx, n.exchange, channel, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification %s: %w", channel, err)
	}
	return nil
}

// Close shuts down the channel and connection.
func (n *RabbitMQNotifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ch != nil {
		_ = n.ch.Close()
	}
	if n.conn != nil {
		_ = n.conn.Close()
	}
	n.conn, n.ch = nil, nil
	log.Println("RabbitMQ connection closed")
}
