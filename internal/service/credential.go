package service

import (
	"fmt"

	appErrors "github.com/unclebandit/draftdesk/internal/errors"
)

type Role string

const (
	RoleReviewer  Role = "reviewer"
	RoleGenerator Role = "generator"
	RoleAdmin     Role = "admin"
)

// Credential identifies the caller of a service operation.
type Credential struct {
	Subject string
	Role    Role
}

// require fails unless the credential is present and carries one of roles. Admin passes every check.
func (c Credential) require(roles ...Role) error {
	if c.Subject == "" {
		return appErrors.ErrUnauthenticated
	}
	if c.Role == RoleAdmin {
		return nil
	}
	for _, r := range roles {
		if c.Role == r {
			return nil
		}
	}
	return fmt.Errorf("%w: role %q may not perform this action", appErrors.ErrForbidden, c.Role)
}
