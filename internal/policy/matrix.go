package policy

// Action is an operation on a resource kind.
type Action string

const (
	ActionView       Action = "view"
	ActionList       Action = "list"
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionDeactivate Action = "deactivate"
	ActionExport     Action = "export"
)

// Resource is a protected resource kind.
type Resource string

const (
	ResourceClientRecord Resource = "client_record"
	ResourceIdentity     Resource = "identity"
	ResourceProgram      Resource = "program"
	ResourceAuditLog     Resource = "audit_log"
)

// Scope is the enforcement level of a permission.
type Scope int

const (
	// ScopeDeny is the zero value: absent matrix entries deny.
	ScopeDeny Scope = iota
	// ScopeScoped permits the action only within the caller's programs.
	ScopeScoped
	// ScopeFull permits the action instance-wide.
	ScopeFull
)

func (s Scope) String() string {
	switch s {
	case ScopeScoped:
		return "scoped"
	case ScopeFull:
		return "full"
	default:
		return "deny"
	}
}

// matrix is the complete permission table. It is data, not code: changing
// what a role may do means editing this table, and reviewing access means
// reading it. Any (role, resource, action) tuple missing here is denied.
var matrix = map[Role]map[Resource]map[Action]Scope{
	RoleSystemAdmin: {
		ResourceClientRecord: {
			ActionView: ScopeFull, ActionList: ScopeFull, ActionCreate: ScopeFull,
			ActionUpdate: ScopeFull, ActionDeactivate: ScopeFull, ActionExport: ScopeFull,
		},
		ResourceIdentity: {
			ActionView: ScopeFull, ActionList: ScopeFull, ActionCreate: ScopeFull,
			ActionUpdate: ScopeFull, ActionDeactivate: ScopeFull,
		},
		ResourceProgram: {
			ActionView: ScopeFull, ActionList: ScopeFull, ActionCreate: ScopeFull,
			ActionUpdate: ScopeFull, ActionDeactivate: ScopeFull,
		},
		ResourceAuditLog: {
			ActionView: ScopeFull, ActionList: ScopeFull, ActionExport: ScopeFull,
		},
	},
	RoleExecutive: {
		ResourceClientRecord: {
			ActionView: ScopeScoped, ActionList: ScopeScoped, ActionExport: ScopeScoped,
		},
		ResourceIdentity: {
			ActionView: ScopeScoped, ActionList: ScopeScoped,
		},
		ResourceProgram: {
			ActionView: ScopeScoped, ActionList: ScopeScoped,
		},
	},
	RoleProgramManager: {
		ResourceClientRecord: {
			ActionView: ScopeScoped, ActionList: ScopeScoped, ActionCreate: ScopeScoped,
			ActionUpdate: ScopeScoped, ActionExport: ScopeScoped,
		},
		ResourceIdentity: {
			ActionView: ScopeScoped, ActionList: ScopeScoped, ActionCreate: ScopeScoped,
			ActionUpdate: ScopeScoped, ActionDeactivate: ScopeScoped,
		},
		ResourceProgram: {
			ActionView: ScopeScoped, ActionList: ScopeScoped,
		},
	},
	RoleFrontLine: {
		ResourceClientRecord: {
			ActionView: ScopeScoped, ActionList: ScopeScoped, ActionCreate: ScopeScoped,
			ActionUpdate: ScopeScoped,
		},
		ResourceProgram: {
			ActionView: ScopeScoped,
		},
	},
	RoleFrontDesk: {
		ResourceClientRecord: {
			ActionView: ScopeScoped, ActionList: ScopeScoped,
		},
		ResourceProgram: {
			ActionView: ScopeScoped,
		},
	},
}

// Lookup returns the enforcement level for one role on one action.
// Unknown tuples resolve to ScopeDeny.
func Lookup(role Role, resource Resource, action Action) Scope {
	byResource, ok := matrix[role]
	if !ok {
		return ScopeDeny
	}
	byAction, ok := byResource[resource]
	if !ok {
		return ScopeDeny
	}
	return byAction[action]
}
