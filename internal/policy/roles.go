// Package policy resolves whether an identity may perform an action on a
// resource within a program (tenant). Permissions are data: a fixed
// role × action × resource matrix that can be audited without reading the
// enforcement path. Everything not present in the matrix is denied.
package policy

// Role is one of the fixed staff roles. An identity holds at most one
// active role per program.
type Role string

const (
	RoleSystemAdmin    Role = "system_administrator"
	RoleExecutive      Role = "executive"
	RoleProgramManager Role = "program_manager"
	RoleFrontLine      Role = "front_line"
	RoleFrontDesk      Role = "front_desk"
)

// roleRank orders roles by privilege. Elevation rules compare ranks;
// a role may only be granted by a strictly higher-ranked actor.
var roleRank = map[Role]int{
	RoleSystemAdmin:    5,
	RoleExecutive:      4,
	RoleProgramManager: 3,
	RoleFrontLine:      2,
	RoleFrontDesk:      1,
}

// Valid reports whether r is one of the fixed roles.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Rank returns the privilege rank of the role, 0 for unknown roles.
func (r Role) Rank() int { return roleRank[r] }

// Outranks reports whether r holds strictly more privilege than other.
func (r Role) Outranks(other Role) bool { return r.Rank() > other.Rank() }

// Roles lists every valid role.
func Roles() []Role {
	return []Role{RoleSystemAdmin, RoleExecutive, RoleProgramManager, RoleFrontLine, RoleFrontDesk}
}
