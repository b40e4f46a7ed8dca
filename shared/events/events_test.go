package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestAffectedAccountIDs(t *testing.T) {
	tests := []struct {
		name  string
		event AccountEvent
		want  []string
	}{
		{"created top-level", AccountCreatedEvent{AccountID: "a"}, []string{"a"}},
		{"created alias", AccountCreatedEvent{AccountID: "b", ParentID: ptr("a")}, []string{"b", "a"}},
		{"updated parent moved", AccountUpdatedEvent{AccountID: "b", ParentID: ptr("c"), PreviousParentID: ptr("a")}, []string{"b", "c", "a"}},
		{"updated parent unchanged", AccountUpdatedEvent{AccountID: "b", ParentID: ptr("a"), PreviousParentID: ptr("a")}, []string{"b", "a"}},
		{"deleted with detached aliases", AccountDeletedEvent{AccountID: "a", DetachedAliasIDs: []string{"b", "c"}}, []string{"a", "b", "c"}},
		{"linked directly", AliasLinkedEvent{AccountID: "a", AliasID: "b", ParentID: "a"}, []string{"b", "a"}},
		{"linked through an alias", AliasLinkedEvent{AccountID: "b", AliasID: "c", ParentID: "a"}, []string{"c", "a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.AffectedAccountIDs())
		})
	}
}

func TestDecodeDataAfterTransport(t *testing.T) {
	sent := Event{Type: AccountAliasLinked, Data: AliasLinkedEvent{AccountID: "b", AliasID: "c", ParentID: "a"}}
	raw, err := json.Marshal(sent)
	require.NoError(t, err)

	var received Event
	require.NoError(t, json.Unmarshal(raw, &received))

	var payload AliasLinkedEvent
	require.NoError(t, received.DecodeData(&payload))
	assert.Equal(t, sent.Data, payload)
}
