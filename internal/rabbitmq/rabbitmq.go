// Package rabbitmq publishes accepted reports to a fanout exchange so
// downstream consumers (alerting, long-term analytics) can tap the report
// stream without touching the dashboard's storage.
package rabbitmq

import (
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"benchboard/internal/config"
)

type Publisher interface {
	Publish(body []byte, headers amqp.Table) error
	Health() error
	Close() error
}

type publisher struct {
	conn         *amqp.Connection
	channel      *amqp.Channel
	config       config.RabbitMQConfig
	mu           sync.Mutex
	reconnecting bool
	notifyClose  chan *amqp.Error
}

// NewPublisherFromConfig connects, declares the firehose exchange and starts
// the reconnect watcher.
func NewPublisherFromConfig(cfg config.RabbitMQConfig) (Publisher, error) {
	p := &publisher{
		config:       cfg,
		reconnecting: false,
	}

	if err := p.connect(); err != nil {
		return nil, err
	}

	p.setupReconnect()

	return p, nil
}

func (p *publisher) connect() error {
	amqpURL := fmt.Sprintf("amqp://%s:%s@%s:%d/%s",
		p.config.Username,
		p.config.Password,
		p.config.Host,
		p.config.Port,
		p.config.VHost,
	)

	conn, err := amqp.DialConfig(amqpURL, amqp.Config{
		Heartbeat: 30 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to RabbitMQ")
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		log.Error().Err(err).Msg("Failed to open RabbitMQ channel")
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(p.config.ExchangeName, "fanout", true, false, false, false, nil); err != nil {
		log.Error().Err(err).Str("exchange", p.config.ExchangeName).Msg("Failed to declare firehose exchange")
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.conn = conn
	p.channel = ch

	log.Info().
		Str("host", p.config.Host).
		Int("port", p.config.Port).
		Str("exchange", p.config.ExchangeName).
		Msg("RabbitMQ firehose connection established")

	return nil
}

func (p *publisher) setupReconnect() {
	p.notifyClose = p.conn.NotifyClose(make(chan *amqp.Error))

	go func() {
		for err := range p.notifyClose {
			log.Warn().
				Str("reason", err.Reason).
				Int("code", err.Code).
				Bool("recover", err.Recover).
				Msg("RabbitMQ connection closed, attempting to reconnect...")

			p.doReconnect()
		}
	}()
}

func (p *publisher) doReconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.reconnecting {
		return
	}

	p.reconnecting = true
	defer func() { p.reconnecting = false }()

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil && !p.conn.IsClosed() {
		p.conn.Close()
	}

	// Exponential backoff with cap
	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		log.Info().Dur("backoff", backoff).Msg("Attempting to reconnect to RabbitMQ")

		if err := p.connect(); err != nil {
			log.Error().Err(err).Msg("Failed to reconnect to RabbitMQ")

			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		p.setupReconnect()
		return
	}
}

// Publish sends one report event to the firehose exchange. Callers treat
// failures as best-effort: a down broker never fails an ingest.
func (p *publisher) Publish(body []byte, headers amqp.Table) error {
	p.mu.Lock()
	ch := p.channel
	p.mu.Unlock()

	if ch == nil {
		return fmt.Errorf("rabbitmq channel not available")
	}

	return ch.Publish(p.config.ExchangeName, p.config.RoutingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
		Headers:     headers,
	})
}

func (p *publisher) Health() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection closed")
	}
	return nil
}

func (p *publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn.Close()
	}
	return nil
}
