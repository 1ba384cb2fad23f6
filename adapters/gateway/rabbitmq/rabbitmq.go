package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/Go-routine-4595/edge-iot-sim/model"
)

const (
	defaultQueueDepth = 64
	reconnectDelay    = 5 * time.Second
)

var ErrQueueFull = errors.New("rabbitmq publish queue is full")

type RabbitMQConfig struct {
	ConnectionString string `yaml:"ConnectionString"`
	QueueName        string `yaml:"QueueName"`
	QueueDepth       int    `yaml:"QueueDepth"`
}

// RabbitMQ buffers marshalled snapshots and publishes them from its own
// goroutine to a durable queue.
type RabbitMQ struct {
	ConnectionString string
	QueueName        string
	msgs             chan []byte
	logger           zerolog.Logger
	conn             *amqp.Connection
	ch               *amqp.Channel
	publish          func(body []byte) error
	connectFn        func() error
}

func NewRabbitMQ(config RabbitMQConfig, logger zerolog.Logger) *RabbitMQ {
	depth := config.QueueDepth
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	r := &RabbitMQ{
		msgs:             make(chan []byte, depth),
		ConnectionString: config.ConnectionString,
		QueueName:        config.QueueName,
		logger:           logger,
	}
	r.publish = r.channelPublish
	r.connectFn = r.connect
	return r
}

func (r *RabbitMQ) Name() string { return "rabbitmq" }

// SendSnapshot queues the snapshot without blocking the caller.
func (r *RabbitMQ) SendSnapshot(snap model.Snapshot) error {
	msg, err := json.Marshal(snap)
	if err != nil {
		return errors.Join(err, errors.New("failed to marshal snapshot"))
	}
	select {
	case r.msgs <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// connect establishes a new connection and channel
func (r *RabbitMQ) connect() error {
	var (
		err error
	)
	r.conn, err = amqp.Dial(r.ConnectionString)
	if err != nil {
		return err
	}

	r.ch, err = r.conn.Channel()
	if err != nil {
		return err
	}

	_, err = r.ch.QueueDeclare(
		r.QueueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	return err
}

// reconnect retries until it succeeds or ctx is cancelled.
func (r *RabbitMQ) reconnect(ctx context.Context) bool {
	for {
		r.logger.Info().Msg("Attempting to reconnect to RabbitMQ...")
		err := r.connectFn()
		if err == nil {
			r.logger.Info().Msg("Successfully reconnected to RabbitMQ...")
			return true
		}
		r.logger.Error().Err(err).Msg("Reconnect failed")
		select {
		case <-ctx.Done():
			return false
		case <-time.After(reconnectDelay):
		}
	}
}

// Start connects and launches the publishing goroutine.
func (r *RabbitMQ) Start(ctx context.Context, wg *sync.WaitGroup) error {
	if err := r.connectFn(); err != nil {
		return errors.Join(err, errors.New("failed to connect to RabbitMQ"))
	}
	wg.Add(1)
	go r.consume(ctx, wg)
	return nil
}

// Close gracefully shuts down the connection.
func (r *RabbitMQ) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

func (r *RabbitMQ) channelPublish(body []byte) error {
	return r.ch.Publish(
		"",          // Exchange
		r.QueueName, // Routing key (queue name)
		false,       // Mandatory
		false,       // Immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

func (r *RabbitMQ) consume(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			if err := r.Close(); err != nil {
				r.logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
			}
			r.logger.Info().Msg("Received interrupt signal, closing connection")
			return
		case msg := <-r.msgs:
			if err := r.publish(msg); err != nil {
				r.logger.Error().Err(err).Msg("Failed to publish a message")
				if !r.reconnect(ctx) {
					return
				}
			}
		}
	}
}
