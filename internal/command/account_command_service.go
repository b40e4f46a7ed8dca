package command

import (
	"context"
	"fmt"
	"time"

	"github.com/finances/accounts-service/internal/repository"
	"github.com/finances/accounts-service/shared/cqrs"
	"github.com/finances/accounts-service/shared/events"
	"github.com/finances/accounts-service/shared/models"
	"github.com/finances/accounts-service/shared/utils"
	"github.com/rs/zerolog/log"
)

// AccountWriter is the write side of the account store.
type AccountWriter interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	Update(ctx context.Context, account *models.Account) (*models.Account, *string, error)
	Delete(ctx context.Context, id string) (*repository.DeletedAccount, error)
	LinkAlias(ctx context.Context, targetID, aliasID string) (*models.Account, error)
}

// ViewInvalidator drops cached account views.
type ViewInvalidator interface {
	InvalidateAccountView(ctx context.Context, ids ...string)
}

type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// AccountCommandService writes account state and keeps the read model in sync.
// Every mutation drops the cached views it touched before returning, and
// announces itself on the account event stream so other replicas do the same.
type AccountCommandService struct {
	writeRepo AccountWriter
	views     ViewInvalidator
	publisher EventPublisher
	newID     func() string
}

func NewAccountCommandService(
	writeRepo AccountWriter,
	views ViewInvalidator,
	publisher EventPublisher,
) *AccountCommandService {
	return &AccountCommandService{
		writeRepo: writeRepo,
		views:     views,
		publisher: publisher,
		newID:     utils.NewAccountID,
	}
}

func (s *AccountCommandService) CreateAccount(ctx context.Context, cmd cqrs.CreateAccountCommand) (*models.Account, error) {
	account := &models.Account{
		ID:       s.newID(),
		Name:     cmd.Name,
		IBAN:     cmd.IBAN,
		Nickname: cmd.Nickname,
		ParentID: cmd.ParentID,
	}
	created, err := s.writeRepo.Create(ctx, account)
	if err != nil {
		return nil, err
	}

	event := events.AccountCreatedEvent{AccountID: created.ID, ParentID: created.ParentID}
	s.views.InvalidateAccountView(ctx, event.AffectedAccountIDs()...)
	s.publish(ctx, events.AccountCreated, event)

	log.Info().Str("account_id", created.ID).Msg("account created")
	return created, nil
}

func (s *AccountCommandService) UpdateAccount(ctx context.Context, cmd cqrs.UpdateAccountCommand) (*models.Account, error) {
	updated, previousParentID, err := s.writeRepo.Update(ctx, accountFromUpdate(cmd))
	if err != nil {
		return nil, err
	}

	event := events.AccountUpdatedEvent{
		AccountID:        updated.ID,
		ParentID:         updated.ParentID,
		PreviousParentID: previousParentID,
	}
	s.views.InvalidateAccountView(ctx, event.AffectedAccountIDs()...)
	s.publish(ctx, events.AccountUpdated, event)

	log.Info().Str("account_id", updated.ID).Msg("account updated")
	return updated, nil
}

func (s *AccountCommandService) DeleteAccount(ctx context.Context, cmd cqrs.DeleteAccountCommand) error {
	deleted, err := s.writeRepo.Delete(ctx, cmd.AccountID)
	if err != nil {
		return err
	}

	event := events.AccountDeletedEvent{
		AccountID:        deleted.Account.ID,
		ParentID:         deleted.Account.ParentID,
		DetachedAliasIDs: deleted.DetachedAliasIDs,
	}
	s.views.InvalidateAccountView(ctx, event.AffectedAccountIDs()...)
	s.publish(ctx, events.AccountDeleted, event)

	log.Info().
		Str("account_id", deleted.Account.ID).
		Int("detached_aliases", len(deleted.DetachedAliasIDs)).
		Msg("account deleted")
	return nil
}

// LinkAlias makes cmd.AliasID an alias of cmd.AccountID's group and returns
// the alias as stored.
func (s *AccountCommandService) LinkAlias(ctx context.Context, cmd cqrs.LinkAliasCommand) (*models.Account, error) {
	alias, err := s.writeRepo.LinkAlias(ctx, cmd.AccountID, cmd.AliasID)
	if err != nil {
		return nil, err
	}

	event := events.AliasLinkedEvent{
		AccountID: cmd.AccountID,
		AliasID:   alias.ID,
		ParentID:  *alias.ParentID,
	}
	s.views.InvalidateAccountView(ctx, event.AffectedAccountIDs()...)
	s.publish(ctx, events.AccountAliasLinked, event)

	log.Info().Str("alias_id", alias.ID).Str("parent_id", *alias.ParentID).Msg("alias linked")
	return alias, nil
}

// HandleAccountEvent drops the cached views named by an account event
// published by any replica, including this one.
func (s *AccountCommandService) HandleAccountEvent(ctx context.Context, event events.Event) error {
	var payload events.AccountEvent
	switch event.Type {
	case events.AccountCreated:
		var data events.AccountCreatedEvent
		if err := event.DecodeData(&data); err != nil {
			return err
		}
		payload = data
	case events.AccountUpdated:
		var data events.AccountUpdatedEvent
		if err := event.DecodeData(&data); err != nil {
			return err
		}
		payload = data
	case events.AccountDeleted:
		var data events.AccountDeletedEvent
		if err := event.DecodeData(&data); err != nil {
			return err
		}
		payload = data
	case events.AccountAliasLinked:
		var data events.AliasLinkedEvent
		if err := event.DecodeData(&data); err != nil {
			return err
		}
		payload = data
	default:
		log.Debug().Str("type", event.Type).Msg("ignoring unknown account event")
		return nil
	}

	ids := payload.AffectedAccountIDs()
	if len(ids) == 0 || ids[0] == "" {
		return fmt.Errorf("%w: %s event without account id", events.ErrMalformedEvent, event.Type)
	}
	s.views.InvalidateAccountView(ctx, ids...)
	log.Debug().Str("type", event.Type).Strs("account_ids", ids).Msg("account views invalidated")
	return nil
}

func (s *AccountCommandService) publish(ctx context.Context, eventType string, data any) {
	// The write is committed; a lost event only delays other replicas' caches.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, events.AccountEventsStream, eventType, data); err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("failed to publish account event")
	}
}

// accountFromUpdate maps every mutable field of the command onto the stored
// representation. Fields not listed here cannot be changed by an update.
func accountFromUpdate(cmd cqrs.UpdateAccountCommand) *models.Account {
	return &models.Account{
		ID:       cmd.AccountID,
		Name:     cmd.Name,
		IBAN:     cmd.IBAN,
		Nickname: cmd.Nickname,
		ParentID: cmd.ParentID,
	}
}
