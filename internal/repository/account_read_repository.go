package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/finances/accounts-service/shared/apperr"
	"github.com/finances/accounts-service/shared/models"
	sharedredis "github.com/finances/accounts-service/shared/redis"
	"github.com/finances/accounts-service/shared/utils"
	goredis "github.com/redis/go-redis/v9"
)

const accountViewKeyPrefix = "account:view:"

// AccountReadRepository serves account views. When Redis is configured the
// single-account view is read through a cache keyed by account id; listings
// always come from PostgreSQL.
type AccountReadRepository struct {
	db    *sql.DB
	cache *sharedredis.ViewCache[models.AccountView]
}

// NewAccountReadRepository builds a read repository. A nil redisClient
// disables caching.
func NewAccountReadRepository(db *sql.DB, redisClient *goredis.Client, ttl time.Duration) *AccountReadRepository {
	return &AccountReadRepository{
		db:    db,
		cache: sharedredis.NewViewCache[models.AccountView](redisClient, accountViewKeyPrefix, ttl),
	}
}

// GetByID returns the account and its direct aliases.
func (r *AccountReadRepository) GetByID(ctx context.Context, id string) (*models.AccountView, error) {
	if view, ok := r.cache.Get(ctx, id); ok {
		return view, nil
	}

	account, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound(MsgAccountNotFound)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to get account")
	}

	aliases, err := r.queryAccounts(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE parent_id = $1 ORDER BY name, id`, id)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list aliases")
	}

	view := models.NewAccountView(account, aliases)
	r.cache.Set(ctx, id, view)
	return view, nil
}

// Search lists accounts whose name, iban and nickname contain the given
// substrings, case-insensitively. Empty filter fields match everything.
// Aliases are excluded unless filter.IncludeAliases is set.
func (r *AccountReadRepository) Search(ctx context.Context, filter models.AccountFilter) ([]models.Account, error) {
	var (
		conditions []string
		args       []any
	)
	addLike := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, utils.ContainsPattern(value))
		conditions = append(conditions, column+` ILIKE $`+strconv.Itoa(len(args)))
	}
	addLike("name", filter.Name)
	addLike("iban", filter.IBAN)
	addLike("nickname", filter.Nickname)
	if !filter.IncludeAliases {
		conditions = append(conditions, "parent_id IS NULL")
	}

	query := `SELECT ` + accountColumns + ` FROM accounts`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY name, id`

	accounts, err := r.queryAccounts(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal(err, "failed to search accounts")
	}
	return accounts, nil
}

// InvalidateAccountView drops the cached views of ids.
func (r *AccountReadRepository) InvalidateAccountView(ctx context.Context, ids ...string) {
	r.cache.Delete(ctx, ids...)
}

// Ping reports whether the database answers queries.
func (r *AccountReadRepository) Ping(ctx context.Context) error {
	var one int
	return r.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one)
}

func (r *AccountReadRepository) queryAccounts(ctx context.Context, query string, args ...any) ([]models.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}
