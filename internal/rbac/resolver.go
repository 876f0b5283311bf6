package rbac

// Resolve answers whether role may perform action on module using the static
// table. It is pure and total: unknown roles, modules or actions are denied.
func Resolve(role string, module Module, action Action) bool {
	return defaultResolver.Resolve(ParseRole(role), module, action)
}

var defaultResolver = NewResolver()

// Resolver looks up grants in a role table.
type Resolver struct {
	table map[Role]map[Module]Grants
}

// NewResolver constructs a Resolver over the static table.
func NewResolver() *Resolver {
	return &Resolver{table: staticTable}
}

// Grants returns the row for (role, module); the zero value when absent.
func (r *Resolver) Grants(role Role, module Module) Grants {
	modules, ok := r.table[role]
	if !ok {
		return Grants{}
	}
	return modules[module]
}

// Resolve looks up a single cell.
func (r *Resolver) Resolve(role Role, module Module, action Action) bool {
	return r.Grants(role, module).Allows(action)
}

// For returns the capabilities of a principal holding role. Overrides replace
// whole module rows and are applied only when passed here.
func (r *Resolver) For(role string, overrides ...Override) Capabilities {
	caps := Capabilities{role: ParseRole(role), resolver: r}
	if len(overrides) > 0 {
		caps.overrides = make(map[Module]Grants, len(overrides))
		for _, o := range overrides {
			if !o.Module.IsKnown() {
				continue
			}
			caps.overrides[o.Module] = o.Grants
		}
	}
	return caps
}

// Capabilities answers permission questions for one principal.
type Capabilities struct {
	role      Role
	resolver  *Resolver
	overrides map[Module]Grants
}

// Role returns the canonical role the capabilities were built from.
func (c Capabilities) Role() Role { return c.role }

func (c Capabilities) grants(module Module) Grants {
	if g, ok := c.overrides[module]; ok {
		return g
	}
	if c.resolver == nil {
		return Grants{}
	}
	return c.resolver.Grants(c.role, module)
}

// Can checks one action on a module.
func (c Capabilities) Can(module Module, action Action) bool {
	return c.grants(module).Allows(action)
}

// CanAccess reports whether the module may be opened at all.
func (c Capabilities) CanAccess(module Module) bool {
	if c.Can(module, ActionView) {
		return true
	}
	if !alwaysVisible[module] {
		return false
	}
	return c.role == RoleDirector || c.role == RoleEmployee
}

// CanEdit reports the update grant.
func (c Capabilities) CanEdit(module Module) bool { return c.Can(module, ActionUpdate) }

// CanDelete reports the delete grant.
func (c Capabilities) CanDelete(module Module) bool { return c.Can(module, ActionDelete) }

// CanExport reports the export grant.
func (c Capabilities) CanExport(module Module) bool { return c.Can(module, ActionExport) }

// IsDirector is derived from the role.
func (c Capabilities) IsDirector() bool { return c.role == RoleDirector }

// IsEmployee is derived from the role.
func (c Capabilities) IsEmployee() bool { return c.role == RoleEmployee }

// Matrix returns the effective grants for the whole catalogue.
func (c Capabilities) Matrix() map[Module]Grants {
	out := make(map[Module]Grants, len(Modules()))
	for _, m := range Modules() {
		out[m] = c.grants(m)
	}
	return out
}
