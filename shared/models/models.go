package models

import "time"

// Account is the write model stored in PostgreSQL. ParentID is nil for a
// top-level account and points at the top-level account for an alias.
type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IBAN      string    `json:"iban"`
	Nickname  string    `json:"nickname"`
	ParentID  *string   `json:"parent_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAlias reports whether the account is grouped under another account.
func (a *Account) IsAlias() bool {
	return a.ParentID != nil
}

// AccountFilter narrows a search. Empty strings do not filter; matching is a
// case-insensitive substring match and all set fields must match.
type AccountFilter struct {
	Name           string
	IBAN           string
	Nickname       string
	IncludeAliases bool
}
