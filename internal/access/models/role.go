package models

import (
	dErrors "impactledger/pkg/domain-errors"
)

// Role names a capability held by a set of principals.
type Role string

const (
	// RoleAdmin writes the module registry, grants roles, archives NGOs and
	// cancels proposals. Held by the Timelock after bootstrap.
	RoleAdmin Role = "ADMIN"
	// RoleVerifier verifies or rejects NGOs and may create milestones for them.
	RoleVerifier Role = "VERIFIER"
	// RoleProposer may schedule operations on the Timelock.
	RoleProposer Role = "PROPOSER"
	// RoleExecutor may execute ready Timelock operations.
	RoleExecutor Role = "EXECUTOR"
)

var knownRoles = map[Role]bool{
	RoleAdmin:    true,
	RoleVerifier: true,
	RoleProposer: true,
	RoleExecutor: true,
}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !knownRoles[r] {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown role %q", s)
	}
	return r, nil
}

func (r Role) String() string { return string(r) }
