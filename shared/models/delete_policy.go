package models

import "fmt"

// DeletePolicy decides what happens to the aliases of a deleted account.
type DeletePolicy string

const (
	// DeleteOrphan removes the account and leaves its aliases pointing at the
	// removed id.
	DeleteOrphan DeletePolicy = "orphan"
	// DeleteDetach turns the aliases of the removed account into top-level
	// accounts.
	DeleteDetach DeletePolicy = "detach"
	// DeleteRestrict refuses to remove an account that still has aliases.
	DeleteRestrict DeletePolicy = "restrict"
)

func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch p := DeletePolicy(s); p {
	case DeleteOrphan, DeleteDetach, DeleteRestrict:
		return p, nil
	case "":
		return DeleteOrphan, nil
	default:
		return "", fmt.Errorf("unknown delete policy %q (want orphan, detach or restrict)", s)
	}
}
