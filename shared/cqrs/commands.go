package cqrs

// CreateAccountCommand carries a new account. ParentID is optional.
type CreateAccountCommand struct {
	Name     string
	IBAN     string
	Nickname string
	ParentID *string
}

// UpdateAccountCommand is a full replacement of an account's mutable fields.
type UpdateAccountCommand struct {
	AccountID string
	Name      string
	IBAN      string
	Nickname  string
	ParentID  *string
}

type DeleteAccountCommand struct {
	AccountID string
}

// LinkAliasCommand groups AliasID under AccountID (or under AccountID's own
// parent when AccountID is already an alias).
type LinkAliasCommand struct {
	AccountID string
	AliasID   string
}
