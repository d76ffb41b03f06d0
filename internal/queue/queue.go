package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/mvgalabs/staking-rewards-service/internal/config"
	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

const StakingEventsQueueName = "staking_events_queue"

// StakingEvent is published after the ledger change it describes has been
// committed. Amounts are decimal strings in the token's smallest unit.
type StakingEvent struct {
	Type        types.EventType   `json:"type"`
	UserID      string            `json:"user_id,omitempty"`
	PositionID  string            `json:"position_id,omitempty"`
	Amount      string            `json:"amount,omitempty"`
	TxReference string            `json:"tx_reference,omitempty"`
	OccurredAt  int64             `json:"occurred_at"`
	Details     map[string]string `json:"details,omitempty"`
}

func NewStakingEvent(eventType types.EventType, userID string, at time.Time) *StakingEvent {
	return &StakingEvent{
		Type:       eventType,
		UserID:     userID,
		OccurredAt: at.Unix(),
	}
}

//go:generate mockery --name=EventPublisher --output=../../tests/mocks --outpkg=mocks --filename=mock_event_publisher.go
type EventPublisher interface {
	Publish(ctx context.Context, event *StakingEvent) error
	Shutdown()
}

type QueueManager struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	timeout time.Duration
}

func NewQueueManager(cfg *config.QueueConfig) (*QueueManager, error) {
	amqpURL := fmt.Sprintf("amqp://%s:%s@%s",
		url.QueryEscape(cfg.QueueUser), url.QueryEscape(cfg.QueuePassword), cfg.Url)

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to queue: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open queue channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		StakingEventsQueueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		amqp.Table{"x-queue-type": cfg.QueueType},
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", StakingEventsQueueName, err)
	}

	return &QueueManager{
		conn:    conn,
		channel: channel,
		queue:   StakingEventsQueueName,
		timeout: cfg.PublishTimeout,
	}, nil
}

func (qm *QueueManager) Publish(ctx context.Context, event *StakingEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, qm.timeout)
	defer cancel()

	qm.mu.Lock()
	defer qm.mu.Unlock()

	return qm.channel.PublishWithContext(ctx, "", qm.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         event.Type.String(),
		Timestamp:    time.Unix(event.OccurredAt, 0),
		Body:         body,
	})
}

// Shutdown gracefully stops the interaction with the queue, ensuring all resources are properly released.
func (qm *QueueManager) Shutdown() {
	log.Info().Msg("Shutting down queue manager")

	qm.mu.Lock()
	defer qm.mu.Unlock()

	if err := qm.channel.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close queue channel")
	}
	if err := qm.conn.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close queue connection")
	}
}

// NoopPublisher drops events. It is used when no queue is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event *StakingEvent) error {
	log.Ctx(ctx).Debug().Str("event", event.Type.String()).Msg("queue not configured, dropping event")
	return nil
}

func (NoopPublisher) Shutdown() {}
