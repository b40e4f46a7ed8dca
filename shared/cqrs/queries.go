package cqrs

// GetAccountQuery fetches a single account with its aliases.
type GetAccountQuery struct {
	AccountID string
}

// ListAccountsQuery searches accounts. String filters are case-insensitive
// substrings; IncludeAliases=false restricts the result to top-level accounts.
type ListAccountsQuery struct {
	Name           string
	IBAN           string
	Nickname       string
	IncludeAliases bool
}
