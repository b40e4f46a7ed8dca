package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message(id, body string) redis.XMessage {
	return redis.XMessage{ID: id, Values: map[string]any{"event": body}}
}

func TestNewSubscriberDefaults(t *testing.T) {
	s := NewSubscriber(nil, SubscriberConfig{Stream: AccountEventsStream, Group: "g", Consumer: "c"})

	assert.Equal(t, int64(10), s.batchSize)
	assert.Equal(t, 5*time.Second, s.blockDuration)
	assert.Equal(t, 30*time.Second, s.claimMinIdle)
}

func TestSubscriberDispatch(t *testing.T) {
	created := `{"type":"account.created","data":{"accountId":"a"}}`

	tests := []struct {
		name     string
		messages []redis.XMessage
		handler  Handler
		wantAck  []string
		wantSeen int
	}{
		{
			name:     "handled messages are acknowledged",
			messages: []redis.XMessage{message("1-0", created), message("2-0", created)},
			handler:  func(context.Context, Event) error { return nil },
			wantAck:  []string{"1-0", "2-0"},
			wantSeen: 2,
		},
		{
			name:     "handler failure stays pending for reclaim",
			messages: []redis.XMessage{message("1-0", created), message("2-0", created)},
			handler: func(_ context.Context, e Event) error {
				return errors.New("redis unavailable")
			},
			wantAck:  []string{},
			wantSeen: 2,
		},
		{
			name:     "malformed payload is acknowledged and dropped",
			messages: []redis.XMessage{message("1-0", created)},
			handler: func(context.Context, Event) error {
				return ErrMalformedEvent
			},
			wantAck:  []string{"1-0"},
			wantSeen: 1,
		},
		{
			name:     "undecodable json never reaches the handler",
			messages: []redis.XMessage{message("1-0", "{not json"), message("2-0", created)},
			handler:  func(context.Context, Event) error { return nil },
			wantAck:  []string{"1-0", "2-0"},
			wantSeen: 1,
		},
		{
			name:     "missing event field is dropped",
			messages: []redis.XMessage{{ID: "1-0", Values: map[string]any{"other": "x"}}},
			handler:  func(context.Context, Event) error { return nil },
			wantAck:  []string{"1-0"},
			wantSeen: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := 0
			s := NewSubscriber(nil, SubscriberConfig{
				Stream: AccountEventsStream,
				Handler: func(ctx context.Context, e Event) error {
					seen++
					return tt.handler(ctx, e)
				},
			})

			got := s.dispatch(context.Background(), tt.messages)
			assert.Equal(t, tt.wantAck, got)
			assert.Equal(t, tt.wantSeen, seen)
		})
	}
}

func TestProcessMessageDecodesEvent(t *testing.T) {
	var got Event
	s := NewSubscriber(nil, SubscriberConfig{Handler: func(_ context.Context, e Event) error {
		got = e
		return nil
	}})

	err := s.processMessage(context.Background(),
		message("1-0", `{"type":"account.alias_linked","data":{"accountId":"b","aliasId":"c","parentId":"a"}}`))
	require.NoError(t, err)
	assert.Equal(t, AccountAliasLinked, got.Type)

	var data AliasLinkedEvent
	require.NoError(t, got.DecodeData(&data))
	assert.Equal(t, AliasLinkedEvent{AccountID: "b", AliasID: "c", ParentID: "a"}, data)
}

func TestDecodeDataMarksMalformed(t *testing.T) {
	var data AccountCreatedEvent
	err := Event{Type: AccountCreated, Data: "not an object"}.DecodeData(&data)
	assert.ErrorIs(t, err, ErrMalformedEvent)
}
