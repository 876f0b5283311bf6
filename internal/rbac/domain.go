package rbac

// Role is a canonical back-office role.
type Role string

// Canonical roles. Legacy spellings are folded onto these by ParseRole.
const (
	RoleDirector Role = "director"
	RoleEmployee Role = "employee"
	RoleCustomer Role = "customer"
	RoleUnknown  Role = "unknown"
)

// Module is a functional area of the admin application.
type Module string

// Module catalogue.
const (
	ModuleDashboard     Module = "dashboard"
	ModuleReservations  Module = "reservations"
	ModuleOrders        Module = "orders"
	ModuleCustomers     Module = "customers"
	ModuleMenu          Module = "menu"
	ModuleMessages      Module = "messages"
	ModuleEmployees     Module = "employees"
	ModuleSettings      Module = "settings"
	ModuleStatistics    Module = "statistics"
	ModuleLogs          Module = "logs"
	ModulePermissions   Module = "permissions"
	ModuleInventory     Module = "inventory"
	ModuleLoyalty       Module = "loyalty"
	ModuleNotifications Module = "notifications"
	ModuleReports       Module = "reports"
	ModuleMaintenance   Module = "maintenance"
	ModuleAccounting    Module = "accounting"
	ModuleTables        Module = "tables"
)

// Modules lists the catalogue in display order.
func Modules() []Module {
	return []Module{
		ModuleDashboard,
		ModuleReservations,
		ModuleOrders,
		ModuleTables,
		ModuleCustomers,
		ModuleMenu,
		ModuleMessages,
		ModuleNotifications,
		ModuleInventory,
		ModuleLoyalty,
		ModuleEmployees,
		ModuleAccounting,
		ModuleStatistics,
		ModuleReports,
		ModuleLogs,
		ModulePermissions,
		ModuleSettings,
		ModuleMaintenance,
	}
}

// IsKnown reports whether the module belongs to the catalogue.
func (m Module) IsKnown() bool {
	for _, known := range Modules() {
		if m == known {
			return true
		}
	}
	return false
}

// Action is an operation on a module.
type Action string

// Actions.
const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionExport Action = "export"
	ActionAdmin  Action = "admin"
)

// Actions lists every action.
func Actions() []Action {
	return []Action{ActionView, ActionCreate, ActionUpdate, ActionDelete, ActionExport, ActionAdmin}
}

// Grants holds one boolean per action for a (role, module) pair. The zero
// value denies everything.
type Grants struct {
	View   bool `json:"view"`
	Create bool `json:"create"`
	Update bool `json:"update"`
	Delete bool `json:"delete"`
	Export bool `json:"export"`
	Admin  bool `json:"admin"`
}

// Allows looks up a single action. Unknown actions are denied.
func (g Grants) Allows(action Action) bool {
	switch action {
	case ActionView:
		return g.View
	case ActionCreate:
		return g.Create
	case ActionUpdate:
		return g.Update
	case ActionDelete:
		return g.Delete
	case ActionExport:
		return g.Export
	case ActionAdmin:
		return g.Admin
	default:
		return false
	}
}

// Contains reports whether g grants at least everything other grants.
func (g Grants) Contains(other Grants) bool {
	for _, a := range Actions() {
		if other.Allows(a) && !g.Allows(a) {
			return false
		}
	}
	return true
}

// Override replaces the grants of one module for a single user. Overrides are
// managed by the permissions screen and only apply when explicitly supplied.
type Override struct {
	UserID int64  `json:"user_id"`
	Module Module `json:"module"`
	Grants Grants `json:"grants"`
}
