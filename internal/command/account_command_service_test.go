package command

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/finances/accounts-service/internal/repository"
	"github.com/finances/accounts-service/shared/apperr"
	"github.com/finances/accounts-service/shared/cqrs"
	"github.com/finances/accounts-service/shared/events"
	"github.com/finances/accounts-service/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- mock implementations ----

type mockWriter struct {
	createFn func(*models.Account) (*models.Account, error)
	updateFn func(*models.Account) (*models.Account, *string, error)
	deleteFn func(string) (*repository.DeletedAccount, error)
	linkFn   func(targetID, aliasID string) (*models.Account, error)
}

func (m *mockWriter) Create(_ context.Context, a *models.Account) (*models.Account, error) {
	if m.createFn != nil {
		return m.createFn(a)
	}
	return nil, fmt.Errorf("not configured")
}

func (m *mockWriter) Update(_ context.Context, a *models.Account) (*models.Account, *string, error) {
	if m.updateFn != nil {
		return m.updateFn(a)
	}
	return nil, nil, fmt.Errorf("not configured")
}

func (m *mockWriter) Delete(_ context.Context, id string) (*repository.DeletedAccount, error) {
	if m.deleteFn != nil {
		return m.deleteFn(id)
	}
	return nil, fmt.Errorf("not configured")
}

func (m *mockWriter) LinkAlias(_ context.Context, targetID, aliasID string) (*models.Account, error) {
	if m.linkFn != nil {
		return m.linkFn(targetID, aliasID)
	}
	return nil, fmt.Errorf("not configured")
}

type recordingViews struct {
	invalidated []string
}

func (r *recordingViews) InvalidateAccountView(_ context.Context, ids ...string) {
	r.invalidated = append(r.invalidated, ids...)
}

type published struct {
	stream, eventType string
	data              any
}

type recordingPublisher struct {
	events []published
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, stream, eventType string, data any) error {
	p.events = append(p.events, published{stream: stream, eventType: eventType, data: data})
	return p.err
}

// ---- helpers ----

func strPtr(s string) *string { return &s }

func newTestService(w AccountWriter) (*AccountCommandService, *recordingViews, *recordingPublisher) {
	views := &recordingViews{}
	pub := &recordingPublisher{}
	svc := NewAccountCommandService(w, views, pub)
	svc.newID = func() string { return "new-id" }
	return svc, views, pub
}

// ---- tests ----

func TestCreateAccount(t *testing.T) {
	t.Run("assigns an id and invalidates parent view", func(t *testing.T) {
		var stored *models.Account
		w := &mockWriter{createFn: func(a *models.Account) (*models.Account, error) {
			stored = a
			out := *a
			out.CreatedAt = time.Now()
			return &out, nil
		}}
		svc, views, pub := newTestService(w)

		created, err := svc.CreateAccount(context.Background(), cqrs.CreateAccountCommand{
			Name: "Checking", IBAN: "DE89", Nickname: "main", ParentID: strPtr("parent"),
		})
		require.NoError(t, err)
		assert.Equal(t, "new-id", stored.ID)
		assert.Equal(t, "main", stored.Nickname)
		assert.Equal(t, "new-id", created.ID)
		assert.Equal(t, []string{"new-id", "parent"}, views.invalidated)
		require.Len(t, pub.events, 1)
		assert.Equal(t, events.AccountEventsStream, pub.events[0].stream)
		assert.Equal(t, events.AccountCreated, pub.events[0].eventType)
	})

	t.Run("store error is returned and nothing is published", func(t *testing.T) {
		w := &mockWriter{createFn: func(*models.Account) (*models.Account, error) {
			return nil, apperr.Conflict("duplicate")
		}}
		svc, views, pub := newTestService(w)

		_, err := svc.CreateAccount(context.Background(), cqrs.CreateAccountCommand{Name: "x"})
		assert.True(t, apperr.IsConflict(err))
		assert.Empty(t, views.invalidated)
		assert.Empty(t, pub.events)
	})

	t.Run("publish failure does not fail the write", func(t *testing.T) {
		w := &mockWriter{createFn: func(a *models.Account) (*models.Account, error) { return a, nil }}
		svc, _, pub := newTestService(w)
		pub.err = errors.New("redis down")

		_, err := svc.CreateAccount(context.Background(), cqrs.CreateAccountCommand{Name: "x"})
		assert.NoError(t, err)
	})
}

func TestUpdateAccount(t *testing.T) {
	var got *models.Account
	w := &mockWriter{updateFn: func(a *models.Account) (*models.Account, *string, error) {
		got = a
		return a, strPtr("old-parent"), nil
	}}
	svc, views, _ := newTestService(w)

	_, err := svc.UpdateAccount(context.Background(), cqrs.UpdateAccountCommand{
		AccountID: "acc", Name: "n", IBAN: "i", Nickname: "k", ParentID: strPtr("new-parent"),
	})
	require.NoError(t, err)
	assert.Equal(t, &models.Account{
		ID: "acc", Name: "n", IBAN: "i", Nickname: "k", ParentID: strPtr("new-parent"),
	}, got)
	assert.ElementsMatch(t, []string{"acc", "new-parent", "old-parent"}, views.invalidated)
}

func TestDeleteAccount(t *testing.T) {
	t.Run("invalidates parent and detached aliases", func(t *testing.T) {
		w := &mockWriter{deleteFn: func(id string) (*repository.DeletedAccount, error) {
			return &repository.DeletedAccount{
				Account:          &models.Account{ID: id, ParentID: strPtr("p")},
				DetachedAliasIDs: []string{"x"},
			}, nil
		}}
		svc, views, pub := newTestService(w)

		require.NoError(t, svc.DeleteAccount(context.Background(), cqrs.DeleteAccountCommand{AccountID: "acc"}))
		assert.Equal(t, []string{"acc", "p", "x"}, views.invalidated)
		require.Len(t, pub.events, 1)
		assert.Equal(t, events.AccountDeleted, pub.events[0].eventType)
	})

	t.Run("not found", func(t *testing.T) {
		w := &mockWriter{deleteFn: func(string) (*repository.DeletedAccount, error) {
			return nil, apperr.NotFound("Account not found")
		}}
		svc, _, _ := newTestService(w)

		err := svc.DeleteAccount(context.Background(), cqrs.DeleteAccountCommand{AccountID: "acc"})
		assert.True(t, apperr.IsNotFound(err))
	})
}

func TestLinkAlias(t *testing.T) {
	w := &mockWriter{linkFn: func(targetID, aliasID string) (*models.Account, error) {
		assert.Equal(t, "b", targetID)
		return &models.Account{ID: aliasID, ParentID: strPtr("a")}, nil
	}}
	svc, views, pub := newTestService(w)

	alias, err := svc.LinkAlias(context.Background(), cqrs.LinkAliasCommand{AccountID: "b", AliasID: "c"})
	require.NoError(t, err)
	assert.Equal(t, "a", *alias.ParentID)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, views.invalidated)
	require.Len(t, pub.events, 1)
	assert.Equal(t, events.AliasLinkedEvent{AccountID: "b", AliasID: "c", ParentID: "a"}, pub.events[0].data)
}

func TestHandleAccountEvent(t *testing.T) {
	tests := []struct {
		name    string
		event   events.Event
		want    []string
		wantErr bool
	}{
		{
			name: "created",
			event: events.Event{Type: events.AccountCreated, Data: map[string]any{
				"accountId": "a", "parentId": "p",
			}},
			want: []string{"a", "p"},
		},
		{
			name: "alias linked",
			event: events.Event{Type: events.AccountAliasLinked, Data: map[string]any{
				"accountId": "b", "aliasId": "c", "parentId": "a",
			}},
			want: []string{"c", "a", "b"},
		},
		{
			name: "deleted with detached aliases",
			event: events.Event{Type: events.AccountDeleted, Data: map[string]any{
				"accountId": "a", "detachedAliasIds": []any{"b"},
			}},
			want: []string{"a", "b"},
		},
		{
			name:  "unknown type is ignored",
			event: events.Event{Type: "something.else", Data: map[string]any{}},
		},
		{
			name:    "missing account id",
			event:   events.Event{Type: events.AccountUpdated, Data: map[string]any{}},
			wantErr: true,
		},
		{
			name:    "malformed payload",
			event:   events.Event{Type: events.AccountUpdated, Data: "not an object"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, views, _ := newTestService(&mockWriter{})

			err := svc.HandleAccountEvent(context.Background(), tt.event)
			if tt.wantErr {
				// malformed events are dropped by the subscriber, not retried
				assert.ErrorIs(t, err, events.ErrMalformedEvent)
				assert.Empty(t, views.invalidated)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, views.invalidated)
		})
	}
}
