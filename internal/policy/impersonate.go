package policy

import "errors"

// ErrImpersonationDenied indicates an impersonation request that the guard
// rejected. The session must not change when this is returned.
var ErrImpersonationDenied = errors.New("policy: impersonation denied")

// Impersonate decides whether actor may assume the session of target.
// The target must be explicitly flagged as a non-production identity and
// currently active; a production identity can never be assumed, regardless
// of the caller's privilege. Only administrators may impersonate at all.
func Impersonate(actor, target Subject) error {
	if !actor.Active || !actor.Admin {
		return ErrImpersonationDenied
	}
	if !target.Demo || !target.Active {
		return ErrImpersonationDenied
	}
	return nil
}
