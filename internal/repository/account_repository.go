package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/finances/accounts-service/shared/apperr"
	"github.com/finances/accounts-service/shared/metrics"
	"github.com/finances/accounts-service/shared/models"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

const accountColumns = `id, name, iban, nickname, parent_id, created_at, updated_at`

// Messages returned by the write path.
const (
	MsgAccountNotFound     = "Account not found"
	MsgDuplicateAccount    = "Account with this name and IBAN or this nickname already exists."
	MsgParentMissing       = "Parent account not found"
	MsgParentIsAlias       = "Parent account is itself an alias"
	MsgParentIsSelf        = "Account cannot be its own parent"
	MsgAccountHasAliases   = "Account has aliases and cannot become an alias"
	MsgDeleteHasAliases    = "Account has aliases and cannot be deleted"
	MsgConcurrentAliasLink = "Alias account was modified concurrently"
)

// DeletedAccount describes the outcome of a delete.
type DeletedAccount struct {
	Account *models.Account
	// DetachedAliasIDs lists aliases that became top-level accounts
	// (detach policy only).
	DetachedAliasIDs []string
}

// AccountWriteRepository handles all state-mutating operations for accounts.
// Every operation runs in its own transaction, rolled back on any failure.
type AccountWriteRepository struct {
	db     *sql.DB
	policy models.DeletePolicy
	now    func() time.Time
}

func NewAccountWriteRepository(db *sql.DB, policy models.DeletePolicy) *AccountWriteRepository {
	if policy == "" {
		policy = models.DeleteOrphan
	}
	return &AccountWriteRepository{
		db:     db,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts account. ParentID, when set, must name an existing
// top-level account.
func (r *AccountWriteRepository) Create(ctx context.Context, account *models.Account) (created *models.Account, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal(err, "failed to begin transaction")
	}
	defer rollback(tx, &err)
	defer func() { observe("create", err) }()

	if account.ParentID != nil {
		if err = checkParent(ctx, tx, account.ID, *account.ParentID); err != nil {
			return nil, err
		}
	}

	now := r.now()
	query := `
		INSERT INTO accounts (id, name, iban, nickname, parent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING ` + accountColumns
	created, err = scanAccount(tx.QueryRowContext(ctx, query,
		account.ID, account.Name, account.IBAN, account.Nickname, account.ParentID, now,
	))
	if err != nil {
		return nil, translateWriteError(err, "failed to create account")
	}

	if err = tx.Commit(); err != nil {
		return nil, apperr.Internal(err, "failed to commit account creation")
	}
	return created, nil
}

// Update replaces name, iban, nickname and parent of the account identified
// by account.ID. It returns the stored row and the parent the account had
// before the update.
func (r *AccountWriteRepository) Update(ctx context.Context, account *models.Account) (updated *models.Account, previousParentID *string, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, apperr.Internal(err, "failed to begin transaction")
	}
	defer rollback(tx, &err)
	defer func() { observe("update", err) }()

	var prev sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT parent_id FROM accounts WHERE id = $1 FOR UPDATE`, account.ID).Scan(&prev)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, apperr.NotFound(MsgAccountNotFound)
	}
	if err != nil {
		return nil, nil, apperr.Internal(err, "failed to load account")
	}
	previousParentID = fromNullString(prev)

	// An unchanged parent is accepted even if it has since been deleted.
	if account.ParentID != nil && !sameID(account.ParentID, previousParentID) {
		if err = checkParent(ctx, tx, account.ID, *account.ParentID); err != nil {
			return nil, nil, err
		}
		var has bool
		if has, err = hasAliases(ctx, tx, account.ID); err != nil {
			return nil, nil, err
		}
		if has {
			return nil, nil, apperr.Validation(MsgAccountHasAliases)
		}
	}

	query := `
		UPDATE accounts
		SET name = $2, iban = $3, nickname = $4, parent_id = $5, updated_at = $6
		WHERE id = $1
		RETURNING ` + accountColumns
	updated, err = scanAccount(tx.QueryRowContext(ctx, query,
		account.ID, account.Name, account.IBAN, account.Nickname, account.ParentID, r.now(),
	))
	if err != nil {
		return nil, nil, translateWriteError(err, "failed to update account")
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, apperr.Internal(err, "failed to commit account update")
	}
	return updated, previousParentID, nil
}

// Delete removes the account and applies the configured policy to its
// aliases.
func (r *AccountWriteRepository) Delete(ctx context.Context, id string) (deleted *DeletedAccount, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal(err, "failed to begin transaction")
	}
	defer rollback(tx, &err)
	defer func() { observe("delete", err) }()

	// Serialises against links and parent checks that hold this row FOR SHARE.
	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound(MsgAccountNotFound)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to lock account")
	}

	result := &DeletedAccount{}
	switch r.policy {
	case models.DeleteRestrict:
		var has bool
		if has, err = hasAliases(ctx, tx, id); err != nil {
			return nil, err
		}
		if has {
			return nil, apperr.Conflict(MsgDeleteHasAliases)
		}
	case models.DeleteDetach:
		if result.DetachedAliasIDs, err = r.detachAliases(ctx, tx, id); err != nil {
			return nil, err
		}
	}

	result.Account, err = scanAccount(tx.QueryRowContext(ctx,
		`DELETE FROM accounts WHERE id = $1 RETURNING `+accountColumns, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound(MsgAccountNotFound)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to delete account")
	}

	if err = tx.Commit(); err != nil {
		return nil, apperr.Internal(err, "failed to commit account deletion")
	}
	return result, nil
}

func (r *AccountWriteRepository) detachAliases(ctx context.Context, tx *sql.Tx, id string) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		`UPDATE accounts SET parent_id = NULL, updated_at = $2 WHERE parent_id = $1 RETURNING id`, id, r.now())
	if err != nil {
		return nil, apperr.Internal(err, "failed to detach aliases")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var aliasID string
		if err := rows.Scan(&aliasID); err != nil {
			return nil, apperr.Internal(err, "failed to scan detached alias")
		}
		ids = append(ids, aliasID)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "failed to detach aliases")
	}
	return ids, nil
}

// LinkAlias groups aliasID under targetID, or under targetID's parent when
// targetID is itself an alias. The alias row is written by a single
// conditional UPDATE that only matches while the alias is still top-level and
// has no aliases of its own, so concurrent links of the same alias cannot
// both succeed.
func (r *AccountWriteRepository) LinkAlias(ctx context.Context, targetID, aliasID string) (linked *models.Account, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal(err, "failed to begin transaction")
	}
	defer rollback(tx, &err)
	defer func() { observe("link_alias", err) }()

	// FOR SHARE keeps the target from being deleted or re-parented until commit.
	target, err := getAccount(ctx, tx, targetID, true)
	if err != nil {
		return nil, err
	}
	parentID, err := resolveAlias(ctx, tx, target, aliasID)
	if err != nil {
		return nil, err
	}
	if target.IsAlias() {
		// The target's own lock does not cover the account it points at.
		if err = lockTopLevel(ctx, tx, parentID); err != nil {
			return nil, err
		}
	}

	query := `
		UPDATE accounts
		SET parent_id = $2, updated_at = $3
		WHERE id = $1
		  AND parent_id IS NULL
		  AND NOT EXISTS (SELECT 1 FROM accounts c WHERE c.parent_id = $1)
		RETURNING ` + accountColumns
	linked, err = scanAccount(tx.QueryRowContext(ctx, query, aliasID, parentID, r.now()))
	if errors.Is(err, sql.ErrNoRows) {
		// Lost a race: report what the alias looks like now.
		if _, err = resolveAlias(ctx, tx, target, aliasID); err != nil {
			return nil, err
		}
		log.Warn().Str("alias_id", aliasID).Str("account_id", targetID).Msg("alias link matched no row")
		return nil, apperr.Conflict(MsgConcurrentAliasLink)
	}
	if err != nil {
		return nil, translateWriteError(err, "failed to link alias")
	}

	if err = tx.Commit(); err != nil {
		return nil, apperr.Internal(err, "failed to commit alias link")
	}
	return linked, nil
}

func resolveAlias(ctx context.Context, tx *sql.Tx, target *models.Account, aliasID string) (string, error) {
	alias, err := getAccount(ctx, tx, aliasID, false)
	if err != nil {
		return "", err
	}
	var aliasHasAliases bool
	if alias != nil {
		if aliasHasAliases, err = hasAliases(ctx, tx, aliasID); err != nil {
			return "", err
		}
	}
	return models.ResolveAliasParent(target, alias, aliasHasAliases)
}

// getAccount returns nil without error when the account does not exist.
func getAccount(ctx context.Context, tx *sql.Tx, id string, lock bool) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	if lock {
		query += ` FOR SHARE`
	}
	account, err := scanAccount(tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to load account")
	}
	return account, nil
}

// checkParent verifies that parentID may be used as the parent of accountID.
func checkParent(ctx context.Context, tx *sql.Tx, accountID, parentID string) error {
	if parentID == accountID {
		return apperr.Validation(MsgParentIsSelf)
	}
	var grandparent sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT parent_id FROM accounts WHERE id = $1 FOR SHARE`, parentID).Scan(&grandparent)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Validation(MsgParentMissing)
	}
	if err != nil {
		return apperr.Internal(err, "failed to load parent account")
	}
	if grandparent.Valid {
		return apperr.Validation(MsgParentIsAlias)
	}
	return nil
}

// lockTopLevel holds id FOR SHARE, failing when it no longer exists or has
// since become an alias.
func lockTopLevel(ctx context.Context, tx *sql.Tx, id string) error {
	var locked string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM accounts WHERE id = $1 AND parent_id IS NULL FOR SHARE`, id).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(models.MsgParentNotFound)
	}
	if err != nil {
		return apperr.Internal(err, "failed to lock parent account")
	}
	return nil
}

func hasAliases(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE parent_id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, apperr.Internal(err, "failed to check aliases")
	}
	return exists, nil
}

// translateWriteError maps constraint violations to client errors.
func translateWriteError(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			log.Warn().Str("constraint", pqErr.Constraint).Msg("account uniqueness violated")
			return apperr.Conflict(MsgDuplicateAccount)
		case "check_violation":
			return apperr.Validation(MsgParentIsSelf)
		}
	}
	return apperr.Internal(err, msg)
}

func observe(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	metrics.RecordOperation(operation, outcome)
}

// rollback undoes tx when the surrounding function returns an error. After a
// successful Commit it is a no-op.
func rollback(tx *sql.Tx, err *error) {
	if *err == nil {
		return
	}
	if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
		log.Error().Err(rbErr).Msg("failed to roll back transaction")
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		account models.Account
		parent  sql.NullString
	)
	if err := row.Scan(
		&account.ID, &account.Name, &account.IBAN, &account.Nickname,
		&parent, &account.CreatedAt, &account.UpdatedAt,
	); err != nil {
		return nil, err
	}
	account.ParentID = fromNullString(parent)
	return &account, nil
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func sameID(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
