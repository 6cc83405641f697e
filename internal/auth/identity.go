// Package auth - identity.go defines the stakeholder and admin roles, the
// identity attached to every session, and the admin password check.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
)

// Role distinguishes stakeholder sessions from admin sessions
type Role string

const (
	// RoleStakeholder is an agency user who can view and edit the rows of
	// their own agency.
	RoleStakeholder Role = "stakeholder"

	// RoleAdmin is the shared administrator login with access to every
	// agency, the audit log, and CSV import/export.
	RoleAdmin Role = "admin"
)

// Valid reports whether the role is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleStakeholder || r == RoleAdmin
}

// Identity is the authenticated user attached to a session.
type Identity struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Agency string `json:"agency"`
	Role   Role   `json:"role"`
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// NewStakeholderIdentity builds a stakeholder identity from the login form
// fields. All three fields are required; surrounding whitespace is dropped.
func NewStakeholderIdentity(name, email, agency string) (Identity, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	agency = strings.TrimSpace(agency)

	if name == "" {
		return Identity{}, errors.New("name is required")
	}
	if email == "" {
		return Identity{}, errors.New("email is required")
	}
	if agency == "" {
		return Identity{}, errors.New("agency is required")
	}

	return Identity{Name: name, Email: email, Agency: agency, Role: RoleStakeholder}, nil
}

// AdminIdentity returns the fixed identity used for the shared admin login.
// Admin sessions are not tied to a person; audit entries record them under
// this identity across all agencies.
func AdminIdentity() Identity {
	return Identity{Name: "Admin", Email: "admin@system", Agency: "All", Role: RoleAdmin}
}

// VerifyAdminPassword compares the submitted password against the configured
// one in constant time. The admin password is a single shared secret held in
// configuration; an empty configured password never matches.
func VerifyAdminPassword(provided, configured string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(configured)) == 1
}
