package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Handler func(ctx context.Context, event Event) error

type Subscriber struct {
	client        *redis.Client
	group         string
	consumer      string
	stream        string
	handler       Handler
	batchSize     int64
	blockDuration time.Duration
	claimMinIdle  time.Duration
}

type SubscriberConfig struct {
	Group         string
	Consumer      string
	Stream        string
	Handler       Handler
	BatchSize     int64
	BlockDuration time.Duration
	// ClaimMinIdle is how long a message stays pending before it is handed
	// to the handler again.
	ClaimMinIdle time.Duration
}

func NewSubscriber(client *redis.Client, config SubscriberConfig) *Subscriber {
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}
	if config.BlockDuration == 0 {
		config.BlockDuration = 5 * time.Second
	}
	if config.ClaimMinIdle == 0 {
		config.ClaimMinIdle = 30 * time.Second
	}

	return &Subscriber{
		client:        client,
		group:         config.Group,
		consumer:      config.Consumer,
		stream:        config.Stream,
		handler:       config.Handler,
		batchSize:     config.BatchSize,
		blockDuration: config.BlockDuration,
		claimMinIdle:  config.ClaimMinIdle,
	}
}

// Start blocks until ctx is cancelled, handing every message of the stream to
// the handler. A message whose handler fails stays pending and is claimed
// again with XAUTOCLAIM once it has been idle for ClaimMinIdle. Malformed
// messages are acknowledged and dropped.
func (s *Subscriber) Start(ctx context.Context) error {
	// "$" so a fresh group only sees events published from now on.
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	log.Info().Str("stream", s.stream).Str("group", s.group).Str("consumer", s.consumer).Msg("subscriber started")

	// Zero, so entries left pending by a previous run are picked up first.
	var lastClaim time.Time
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("stream", s.stream).Msg("subscriber stopping")
			return ctx.Err()
		default:
			if time.Since(lastClaim) >= s.claimMinIdle {
				if err := s.claimPending(ctx); err != nil && ctx.Err() == nil {
					log.Error().Err(err).Str("stream", s.stream).Msg("error claiming pending messages")
				}
				lastClaim = time.Now()
			}
			if err := s.readMessages(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				log.Error().Err(err).Str("stream", s.stream).Msg("error reading messages")
				time.Sleep(time.Second)
			}
		}
	}
}

func (s *Subscriber) readMessages(ctx context.Context) error {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, ">"},
		Count:    s.batchSize,
		Block:    s.blockDuration,
	}).Result()

	if err == redis.Nil {
		return nil // No messages
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		s.ack(ctx, s.dispatch(ctx, stream.Messages))
	}
	return nil
}

// claimPending takes over every message that has sat unacknowledged for at
// least claimMinIdle, including ones this consumer failed earlier.
func (s *Subscriber) claimPending(ctx context.Context) error {
	start := "0-0"
	for {
		messages, next, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   s.stream,
			Group:    s.group,
			Consumer: s.consumer,
			MinIdle:  s.claimMinIdle,
			Start:    start,
			Count:    s.batchSize,
		}).Result()
		if err != nil {
			return fmt.Errorf("failed to claim pending messages: %w", err)
		}
		if len(messages) > 0 {
			log.Warn().Str("stream", s.stream).Int("count", len(messages)).Msg("redelivering pending messages")
		}
		s.ack(ctx, s.dispatch(ctx, messages))

		if next == "0-0" || next == "" {
			return nil
		}
		start = next
	}
}

// dispatch hands each message to the handler and returns the IDs that should
// be acknowledged. Handler failures are left out so the message stays pending.
func (s *Subscriber) dispatch(ctx context.Context, messages []redis.XMessage) []string {
	ids := make([]string, 0, len(messages))
	for _, message := range messages {
		err := s.processMessage(ctx, message)
		switch {
		case err == nil:
			ids = append(ids, message.ID)
		case errors.Is(err, ErrMalformedEvent):
			log.Error().Err(err).Str("message_id", message.ID).Msg("dropping malformed message")
			ids = append(ids, message.ID)
		default:
			log.Error().Err(err).Str("message_id", message.ID).Msg("failed to process message")
		}
	}
	return ids
}

func (s *Subscriber) ack(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := s.client.XAck(ctx, s.stream, s.group, ids...).Err(); err != nil {
		log.Error().Err(err).Strs("message_ids", ids).Msg("failed to ACK messages")
	}
}

func (s *Subscriber) processMessage(ctx context.Context, message redis.XMessage) error {
	eventData, ok := message.Values["event"].(string)
	if !ok {
		return fmt.Errorf("%w: missing event field", ErrMalformedEvent)
	}

	var event Event
	if err := json.Unmarshal([]byte(eventData), &event); err != nil {
		return fmt.Errorf("%w: failed to unmarshal event: %w", ErrMalformedEvent, err)
	}

	return s.handler(ctx, event)
}
