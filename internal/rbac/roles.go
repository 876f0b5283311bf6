package rbac

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// roleAliases is the single equivalence table between spellings seen in
// stored accounts and canonical roles.
var roleAliases = map[string]Role{
	"director":  RoleDirector,
	"directeur": RoleDirector,
	"admin":     RoleDirector,
	"manager":   RoleDirector,
	"employee":  RoleEmployee,
	"employe":   RoleEmployee,
	"staff":     RoleEmployee,
	"customer":  RoleCustomer,
	"client":    RoleCustomer,
}

// ParseRole maps a stored role string onto a canonical role. Case and
// diacritics are ignored, so "Directeur" and "employé" resolve. Anything
// not in the alias table is RoleUnknown.
func ParseRole(raw string) Role {
	key := normalizeRoleKey(raw)
	if role, ok := roleAliases[key]; ok {
		return role
	}
	return RoleUnknown
}

func normalizeRoleKey(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, raw)
	if err != nil {
		stripped = raw
	}
	// Casers are stateful; build one per call.
	return cases.Fold().String(stripped)
}

// RoleSatisfies reports whether a principal holding actual meets a route
// requirement for required. Aliases are compared after normalisation and a
// director satisfies employee screens. Unknown and customer roles never
// satisfy a back-office requirement.
func RoleSatisfies(actual string, required Role) bool {
	role := ParseRole(actual)
	switch role {
	case RoleUnknown, RoleCustomer:
		return false
	}
	if role == required {
		return true
	}
	return role == RoleDirector && required == RoleEmployee
}
