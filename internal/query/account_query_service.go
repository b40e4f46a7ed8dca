package query

import (
	"context"

	"github.com/finances/accounts-service/shared/cqrs"
	"github.com/finances/accounts-service/shared/models"
)

// AccountReader is the read side of the account store.
type AccountReader interface {
	GetByID(ctx context.Context, id string) (*models.AccountView, error)
	Search(ctx context.Context, filter models.AccountFilter) ([]models.Account, error)
}

type AccountQueryService struct {
	readRepo AccountReader
}

func NewAccountQueryService(readRepo AccountReader) *AccountQueryService {
	return &AccountQueryService{readRepo: readRepo}
}

// GetAccount fetches a single account view with its aliases.
func (s *AccountQueryService) GetAccount(ctx context.Context, q cqrs.GetAccountQuery) (*models.AccountView, error) {
	return s.readRepo.GetByID(ctx, q.AccountID)
}

func (s *AccountQueryService) ListAccounts(ctx context.Context, q cqrs.ListAccountsQuery) ([]models.Account, error) {
	return s.readRepo.Search(ctx, models.AccountFilter{
		Name:           q.Name,
		IBAN:           q.IBAN,
		Nickname:       q.Nickname,
		IncludeAliases: q.IncludeAliases,
	})
}
