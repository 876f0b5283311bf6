// Package guard decides whether a protected console screen may render for
// the current session.
package guard

import (
	"github.com/odyssey-erp/odyssey-cafe/internal/rbac"
	"github.com/odyssey-erp/odyssey-cafe/internal/session"
)

// Outcome is the result of a guard decision.
type Outcome int

const (
	// Loading means the session has not resolved yet; render nothing.
	Loading Outcome = iota
	// Redirect means nobody is signed in.
	Redirect
	// Denied means the principal lacks the required role or grant.
	Denied
	// Allow means the protected content may render.
	Allow
)

func (o Outcome) String() string {
	switch o {
	case Loading:
		return "loading"
	case Redirect:
		return "redirect"
	case Denied:
		return "denied"
	case Allow:
		return "allow"
	default:
		return "invalid"
	}
}

// Requirement describes what a screen needs. Zero fields are not checked;
// a Module without an Action means view access.
type Requirement struct {
	Role   rbac.Role
	Module rbac.Module
	Action rbac.Action
}

// Decision carries the outcome plus what is needed to explain a denial.
type Decision struct {
	Outcome      Outcome
	RequiredRole string
	ActualRole   string
	Module       rbac.Module
	Action       rbac.Action
	Reason       string
}

// Decide evaluates req against snap using the static permission table.
func Decide(snap session.Snapshot, req Requirement) Decision {
	return DecideWith(rbac.NewResolver(), snap, req)
}

// DecideWith evaluates req against snap using resolver.
func DecideWith(resolver *rbac.Resolver, snap session.Snapshot, req Requirement) Decision {
	if snap.IsLoading {
		return Decision{Outcome: Loading}
	}
	if !snap.IsAuthenticated || snap.User == nil {
		return Decision{Outcome: Redirect, Reason: "sign in required"}
	}
	actual := snap.User.Role
	if req.Role != "" && !rbac.RoleSatisfies(actual, req.Role) {
		return Decision{
			Outcome:      Denied,
			RequiredRole: string(req.Role),
			ActualRole:   actual,
			Reason:       "role " + displayRole(actual) + " does not satisfy required role " + string(req.Role),
		}
	}
	if req.Module != "" {
		action := req.Action
		if action == "" {
			action = rbac.ActionView
		}
		caps := resolver.For(actual)
		allowed := caps.Can(req.Module, action)
		if action == rbac.ActionView {
			allowed = caps.CanAccess(req.Module)
		}
		if !allowed {
			return Decision{
				Outcome:      Denied,
				RequiredRole: string(req.Role),
				ActualRole:   actual,
				Module:       req.Module,
				Action:       action,
				Reason:       "role " + displayRole(actual) + " may not " + string(action) + " " + string(req.Module),
			}
		}
	}
	return Decision{Outcome: Allow, RequiredRole: string(req.Role), ActualRole: actual, Module: req.Module, Action: req.Action}
}

func displayRole(role string) string {
	if role == "" {
		return "(none)"
	}
	return role
}
