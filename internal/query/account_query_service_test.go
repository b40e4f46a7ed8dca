package query

import (
	"context"
	"testing"

	"github.com/finances/accounts-service/shared/apperr"
	"github.com/finances/accounts-service/shared/cqrs"
	"github.com/finances/accounts-service/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReader struct {
	views      map[string]*models.AccountView
	lastFilter models.AccountFilter
}

func (s *stubReader) GetByID(_ context.Context, id string) (*models.AccountView, error) {
	if v, ok := s.views[id]; ok {
		return v, nil
	}
	return nil, apperr.NotFound("Account not found")
}

func (s *stubReader) Search(_ context.Context, filter models.AccountFilter) ([]models.Account, error) {
	s.lastFilter = filter
	return []models.Account{{ID: "a"}}, nil
}

func TestGetAccount(t *testing.T) {
	reader := &stubReader{views: map[string]*models.AccountView{
		"a": {ID: "a", Aliases: []models.Account{{ID: "b"}}},
	}}
	svc := NewAccountQueryService(reader)

	view, err := svc.GetAccount(context.Background(), cqrs.GetAccountQuery{AccountID: "a"})
	require.NoError(t, err)
	assert.Len(t, view.Aliases, 1)

	_, err = svc.GetAccount(context.Background(), cqrs.GetAccountQuery{AccountID: "missing"})
	assert.True(t, apperr.IsNotFound(err))
}

func TestListAccountsPassesEveryFilter(t *testing.T) {
	reader := &stubReader{}
	svc := NewAccountQueryService(reader)

	_, err := svc.ListAccounts(context.Background(), cqrs.ListAccountsQuery{
		Name: "n", IBAN: "i", Nickname: "k", IncludeAliases: true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AccountFilter{Name: "n", IBAN: "i", Nickname: "k", IncludeAliases: true}, reader.lastFilter)
}
