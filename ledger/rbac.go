// rbac.go - The single capability table for role checks.
//
// Every role check in the system goes through Can: the state machine
// for decisions, the API layer for user management and settings.
// No per-endpoint conditionals.
package ledger

// Action names something a role may or may not do.
type Action string

const (
	// ActionSubmit covers creating transactions and replenishment
	// requests. Every authenticated role has it.
	ActionSubmit Action = "submit"

	// ActionDecide covers approving or rejecting pending entities.
	// Custodians may create entries but never decide them, including
	// their own.
	ActionDecide Action = "decide"

	// ActionManageUsers covers listing users and changing roles.
	ActionManageUsers Action = "manage_users"

	// ActionEditSettings covers writing configuration records.
	ActionEditSettings Action = "edit_settings"
)

var capabilities = map[Role]map[Action]bool{
	RoleCustodian: {
		ActionSubmit: true,
	},
	RoleAccountant: {
		ActionSubmit:       true,
		ActionDecide:       true,
		ActionEditSettings: true,
	},
	RoleAdmin: {
		ActionSubmit:       true,
		ActionDecide:       true,
		ActionEditSettings: true,
		ActionManageUsers:  true,
	},
}

// Can reports whether role is allowed to perform action.
// Unknown roles have no capabilities.
func Can(role Role, action Action) bool {
	return capabilities[role][action]
}
