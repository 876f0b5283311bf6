package rbac

var (
	full     = Grants{View: true, Create: true, Update: true, Delete: true, Export: true, Admin: true}
	viewOnly = Grants{View: true}
	operate  = Grants{View: true, Create: true, Update: true}
)

// staticTable is the role → module → grants configuration. Every cell is
// spelled out; a missing module or role denies every action.
var staticTable = map[Role]map[Module]Grants{
	RoleDirector: {
		ModuleDashboard:     full,
		ModuleReservations:  full,
		ModuleOrders:        full,
		ModuleTables:        full,
		ModuleCustomers:     full,
		ModuleMenu:          full,
		ModuleMessages:      full,
		ModuleNotifications: full,
		ModuleInventory:     full,
		ModuleLoyalty:       full,
		ModuleEmployees:     full,
		ModuleAccounting:    full,
		ModuleStatistics:    full,
		ModuleReports:       full,
		ModuleLogs:          full,
		ModulePermissions:   full,
		ModuleSettings:      full,
		ModuleMaintenance:   full,
	},
	RoleEmployee: {
		ModuleDashboard:     viewOnly,
		ModuleReservations:  operate,
		ModuleOrders:        operate,
		ModuleTables:        {View: true, Update: true},
		ModuleCustomers:     operate,
		ModuleMenu:          viewOnly,
		ModuleMessages:      operate,
		ModuleNotifications: {View: true, Update: true},
		ModuleInventory:     {View: true, Update: true},
		ModuleLoyalty:       operate,
		ModuleEmployees:     {},
		ModuleAccounting:    {},
		ModuleStatistics:    {},
		ModuleReports:       {},
		ModuleLogs:          {},
		ModulePermissions:   {},
		ModuleSettings:      {},
		ModuleMaintenance:   {},
	},
	RoleCustomer: {},
}

// alwaysVisible modules are reachable by any back-office role even without a
// view grant.
var alwaysVisible = map[Module]bool{
	ModuleDashboard: true,
}

// Table returns a copy of the static configuration.
func Table() map[Role]map[Module]Grants {
	out := make(map[Role]map[Module]Grants, len(staticTable))
	for role, modules := range staticTable {
		row := make(map[Module]Grants, len(modules))
		for m, g := range modules {
			row[m] = g
		}
		out[role] = row
	}
	return out
}
