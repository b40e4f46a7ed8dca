package models

import "github.com/finances/accounts-service/shared/apperr"

// Messages returned when an alias link is refused.
const (
	MsgParentNotFound  = "Parent account not found"
	MsgAliasNotFound   = "Alias account not found"
	MsgSelfAlias       = "Cannot add self as alias"
	MsgAlreadyAliased  = "Alias account already has a parent"
	MsgAliasHasAliases = "Alias account has aliases of its own"
)

// ResolveAliasParent decides which account alias should point at when it is
// linked to target. Aliases of aliases collapse onto the same top-level
// account, so the result is target's parent when target is itself an alias
// and target otherwise. aliasHasAliases reports whether any account currently
// points at alias.
//
// A nil target or alias means the lookup found nothing.
func ResolveAliasParent(target, alias *Account, aliasHasAliases bool) (string, error) {
	if target == nil {
		return "", apperr.NotFound(MsgParentNotFound)
	}
	if alias == nil {
		return "", apperr.NotFound(MsgAliasNotFound)
	}
	if target.ID == alias.ID {
		return "", apperr.Conflict(MsgSelfAlias)
	}
	if alias.IsAlias() {
		return "", apperr.Conflict(MsgAlreadyAliased)
	}

	parentID := target.ID
	if target.IsAlias() {
		parentID = *target.ParentID
	}
	// target is one of alias's own aliases: linking would point alias at itself.
	if parentID == alias.ID {
		return "", apperr.Conflict(MsgSelfAlias)
	}
	if aliasHasAliases {
		return "", apperr.Conflict(MsgAliasHasAliases)
	}
	return parentID, nil
}
