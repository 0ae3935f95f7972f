package util

import (
	"regexp"
)

// Tenant IDs end up in file paths and Redis channel names, so only a
// conservative alphabet is accepted.
var tenantIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.@:-]{0,127}$`)

func IsValidTenantID(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return tenantIDRegex.MatchString(s)
}
