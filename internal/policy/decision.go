package policy

import "sort"

// Decision is the typed outcome of an authorization check. Calling code
// branches on it explicitly; there is no implicit short-circuit.
type Decision int

const (
	// Allowed permits the request.
	Allowed Decision = iota
	// DeniedNotFound denies while hiding the resource's existence: the
	// caller holds no role in the resource's program, so confirming the
	// object exists would itself be a leak.
	DeniedNotFound
	// DeniedForbidden denies openly: the caller can see the program but
	// the matrix does not permit the action.
	DeniedForbidden
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case DeniedNotFound:
		return "denied_not_found"
	default:
		return "denied_forbidden"
	}
}

// Subject is an authenticated identity with its resolved role assignments,
// as loaded at the start of a request. Roles maps program id to the active
// role held there.
type Subject struct {
	IdentityID  string
	DisplayName string
	Active      bool
	Admin       bool // instance-wide system administrator
	Demo        bool // non-production identity, eligible impersonation target
	Roles       map[string]Role
}

// Programs returns the programs the subject holds an active role in,
// sorted for stable query parameters.
func (s Subject) Programs() []string {
	out := make([]string, 0, len(s.Roles))
	for id := range s.Roles {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RoleIn returns the subject's role in the given program.
func (s Subject) RoleIn(programID string) (Role, bool) {
	r, ok := s.Roles[programID]
	return r, ok
}

// InScope reports whether the subject holds any active role in programID.
func (s Subject) InScope(programID string) bool {
	_, ok := s.Roles[programID]
	return ok
}

// MaxRank is the subject's highest privilege rank across all programs.
// The administrative flag dominates every per-program role.
func (s Subject) MaxRank() int {
	if s.Admin {
		return RoleSystemAdmin.Rank()
	}
	max := 0
	for _, r := range s.Roles {
		if r.Rank() > max {
			max = r.Rank()
		}
	}
	return max
}

// Authorize resolves whether the subject may perform action on a resource
// kind belonging to programID. programID is empty for global resources,
// which any active subject may read but only Full scope may mutate.
//
// Evaluation walks only the subject's own assignments, so cost is
// proportional to the handful of programs a typical identity holds.
func Authorize(s Subject, action Action, resource Resource, programID string) Decision {
	if !s.Active {
		return DeniedForbidden
	}
	if s.Admin {
		if Lookup(RoleSystemAdmin, resource, action) == ScopeFull {
			return Allowed
		}
		return DeniedForbidden
	}

	// Global resource: reads are open to any active role holder, writes
	// require Full scope, which only the administrative path grants.
	if programID == "" {
		if len(s.Roles) == 0 {
			return DeniedForbidden
		}
		if action == ActionView || action == ActionList {
			return Allowed
		}
		for _, role := range s.Roles {
			if Lookup(role, resource, action) == ScopeFull {
				return Allowed
			}
		}
		return DeniedForbidden
	}

	role, ok := s.Roles[programID]
	if !ok {
		// No role in the resource's program: the object must not be
		// confirmed to exist.
		for _, r := range s.Roles {
			if Lookup(r, resource, action) == ScopeFull {
				return Allowed
			}
		}
		return DeniedNotFound
	}
	switch Lookup(role, resource, action) {
	case ScopeFull, ScopeScoped:
		return Allowed
	default:
		return DeniedForbidden
	}
}
