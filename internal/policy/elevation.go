package policy

// Elevation constraints. These hold on every mutating path regardless of
// what a client submits; handlers call them server-side after decoding and
// never rely on what a form chose to render.

// CanAssignRole reports whether the actor may grant, edit or revoke the
// target role within programID. Administrators may assign anything; any
// other actor needs a role in that program strictly outranking the target
// role, so no role can mint a peer or a superior.
func CanAssignRole(actor Subject, target Role, programID string) bool {
	if !actor.Active || !target.Valid() {
		return false
	}
	if actor.Admin {
		return true
	}
	role, ok := actor.RoleIn(programID)
	if !ok {
		return false
	}
	return role.Outranks(target)
}

// CanSetAdminFlag reports whether the actor may set or clear the
// administrative flag on any identity. Only administrators may; every
// other write path must strip the flag from submitted input.
func CanSetAdminFlag(actor Subject) bool {
	return actor.Active && actor.Admin
}

// CanDeactivate reports whether the actor may deactivate the target
// identity. Identities holding the administrative flag can only be
// deactivated by another administrator.
func CanDeactivate(actor Subject, targetAdmin bool) bool {
	if !actor.Active {
		return false
	}
	if targetAdmin {
		return actor.Admin
	}
	return actor.Admin || actor.MaxRank() >= RoleProgramManager.Rank()
}
