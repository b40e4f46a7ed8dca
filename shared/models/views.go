package models

import "time"

// AccountView is the read projection served by GET /accounts/{id}: the
// account together with every account whose parent reference points at it.
type AccountView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IBAN      string    `json:"iban"`
	Nickname  string    `json:"nickname"`
	ParentID  *string   `json:"parent_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Aliases   []Account `json:"aliases"`
}

func NewAccountView(a *Account, aliases []Account) *AccountView {
	if aliases == nil {
		aliases = []Account{}
	}
	return &AccountView{
		ID:        a.ID,
		Name:      a.Name,
		IBAN:      a.IBAN,
		Nickname:  a.Nickname,
		ParentID:  a.ParentID,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
		Aliases:   aliases,
	}
}
