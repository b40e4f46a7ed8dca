package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewAccountID generates the identifier of a new account.
func NewAccountID() string {
	return uuid.NewString()
}

// ValidateAccountID reports whether id is a UUID in any of the accepted
// textual forms.
func ValidateAccountID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// NormalizeAccountID returns the canonical lower-case hyphenated form of id so
// cache keys and SQL parameters agree regardless of how the client wrote it.
func NormalizeAccountID(id string) (string, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsPattern builds an ILIKE pattern matching s as a literal substring.
func ContainsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
