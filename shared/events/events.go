package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event types
const (
	AccountCreated     = "account.created"
	AccountUpdated     = "account.updated"
	AccountDeleted     = "account.deleted"
	AccountAliasLinked = "account.alias_linked"
)

// Stream names
const (
	AccountEventsStream = "account.events"
)

// Base event structure
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// ErrMalformedEvent marks events that can never be handled, however often
// they are redelivered.
var ErrMalformedEvent = errors.New("malformed event")

// DecodeData converts the loosely typed payload of a received event into v.
func (e Event) DecodeData(v any) error {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("%w: failed to re-encode %s payload: %w", ErrMalformedEvent, e.Type, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: failed to decode %s payload: %w", ErrMalformedEvent, e.Type, err)
	}
	return nil
}

// AccountEvent is implemented by every account payload so consumers can tell
// which account read views the change touched.
type AccountEvent interface {
	AffectedAccountIDs() []string
}

type AccountCreatedEvent struct {
	AccountID string  `json:"accountId"`
	ParentID  *string `json:"parentId,omitempty"`
}

func (e AccountCreatedEvent) AffectedAccountIDs() []string {
	return withOptional([]string{e.AccountID}, e.ParentID)
}

type AccountUpdatedEvent struct {
	AccountID        string  `json:"accountId"`
	ParentID         *string `json:"parentId,omitempty"`
	PreviousParentID *string `json:"previousParentId,omitempty"`
}

func (e AccountUpdatedEvent) AffectedAccountIDs() []string {
	return withOptional(withOptional([]string{e.AccountID}, e.ParentID), e.PreviousParentID)
}

type AccountDeletedEvent struct {
	AccountID        string   `json:"accountId"`
	ParentID         *string  `json:"parentId,omitempty"`
	DetachedAliasIDs []string `json:"detachedAliasIds,omitempty"`
}

func (e AccountDeletedEvent) AffectedAccountIDs() []string {
	ids := withOptional([]string{e.AccountID}, e.ParentID)
	return append(ids, e.DetachedAliasIDs...)
}

type AliasLinkedEvent struct {
	AccountID string `json:"accountId"`
	AliasID   string `json:"aliasId"`
	ParentID  string `json:"parentId"`
}

func (e AliasLinkedEvent) AffectedAccountIDs() []string {
	ids := []string{e.AliasID, e.ParentID}
	if e.AccountID != e.ParentID {
		ids = append(ids, e.AccountID)
	}
	return ids
}

func withOptional(ids []string, id *string) []string {
	if id == nil {
		return ids
	}
	for _, existing := range ids {
		if existing == *id {
			return ids
		}
	}
	return append(ids, *id)
}
