package policy

import "strings"

// Caller describes who invoked an administrative command.
type Caller struct {
	UserID        string
	RoleIDs       []string
	Administrator bool
}

// DeniedMessage is the single reply given to every unauthorized caller.
const DeniedMessage = "You do not have permission to use this command."

// CanAdminister reports whether caller may run voice guard admin commands:
// either the platform administrator permission or membership in allowRoleID.
func CanAdminister(caller Caller, allowRoleID string) bool {
	if caller.Administrator {
		return true
	}
	allowRoleID = strings.TrimSpace(allowRoleID)
	if allowRoleID == "" {
		return false
	}
	for _, role := range caller.RoleIDs {
		if role == allowRoleID {
			return true
		}
	}
	return false
}
