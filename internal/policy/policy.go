// Package policy holds the deterministic routing table and the standing
// route guard that decides, on every navigation, whether a session may see a
// page or where it must be redirected instead.
package policy

import (
	"strings"

	"github.com/gasanashema/procure-to-pay/internal/model"
)

const (
	LoginRoute          = "/login"
	RegisterRoute       = "/register"
	ForgotPasswordRoute = "/forgot-password"
	ProfileRoute        = "/profile"
)

type Route struct {
	Pattern string
	Allowed []model.Role
	Public  bool
}

// routes is the full navigation table. Order matters only for documentation;
// matching is exact per segment with {id} wildcards.
var routes = []Route{
	{Pattern: LoginRoute, Public: true},
	{Pattern: RegisterRoute, Public: true},
	{Pattern: ForgotPasswordRoute, Public: true},

	{Pattern: ProfileRoute, Allowed: []model.Role{model.RoleStaff, model.RoleApprover, model.RoleFinance}},

	{Pattern: "/dashboard/staff", Allowed: []model.Role{model.RoleStaff}},
	{Pattern: "/dashboard/staff/requests", Allowed: []model.Role{model.RoleStaff}},
	{Pattern: "/dashboard/staff/requests/{id}", Allowed: []model.Role{model.RoleStaff}},

	{Pattern: "/dashboard/approver", Allowed: []model.Role{model.RoleApprover}},
	{Pattern: "/dashboard/approver/requests/{id}", Allowed: []model.Role{model.RoleApprover}},

	{Pattern: "/dashboard/finance", Allowed: []model.Role{model.RoleFinance}},
	{Pattern: "/dashboard/finance/requests/{id}", Allowed: []model.Role{model.RoleFinance}},
	{Pattern: "/dashboard/finance/po/{id}", Allowed: []model.Role{model.RoleFinance}},
}

func Routes() []Route {
	out := make([]Route, len(routes))
	copy(out, routes)
	return out
}

// RoutesFor lists the patterns a role may navigate to. Feeds the shell's
// sidebar via the navigation endpoint.
func RoutesFor(role model.Role) []string {
	var out []string
	for _, route := range routes {
		if route.Public {
			continue
		}
		for _, allowed := range route.Allowed {
			if allowed == role {
				out = append(out, route.Pattern)
				break
			}
		}
	}
	return out
}

// HomeRoute is the canonical dashboard for a role. Unauthorized navigation
// always lands here, never on an arbitrary page.
func HomeRoute(role model.Role) string {
	switch role {
	case model.RoleApprover:
		return "/dashboard/approver"
	case model.RoleFinance:
		return "/dashboard/finance"
	default:
		return "/dashboard/staff"
	}
}

// SessionState is the guard's view of the session store.
type SessionState struct {
	Loading       bool
	Authenticated bool
	Role          model.Role
}

type Decision struct {
	// Pending is true while session hydration is still in flight; no
	// navigation decision can be made yet.
	Pending    bool
	Allow      bool
	RedirectTo string
}

// Resolve runs the guard for one navigation. It is a standing check: callers
// invoke it on every route change, not once at login.
func Resolve(state SessionState, path string) Decision {
	if state.Loading {
		return Decision{Pending: true}
	}

	route, known := match(path)
	if known && route.Public {
		return Decision{Allow: true}
	}

	if !state.Authenticated {
		return Decision{RedirectTo: LoginRoute}
	}

	if !known || path == "/" {
		// Unknown paths resolve to the role's home rather than a hard 404.
		return Decision{RedirectTo: HomeRoute(state.Role)}
	}

	for _, allowed := range route.Allowed {
		if allowed == state.Role {
			return Decision{Allow: true}
		}
	}
	return Decision{RedirectTo: HomeRoute(state.Role)}
}

func match(path string) (Route, bool) {
	segments := splitPath(path)
	for _, route := range routes {
		if matchPattern(splitPath(route.Pattern), segments) {
			return route, true
		}
	}
	return Route{}, false
}

func matchPattern(pattern, segments []string) bool {
	if len(pattern) != len(segments) {
		return false
	}
	for i, part := range pattern {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			if segments[i] == "" {
				return false
			}
			continue
		}
		if part != segments[i] {
			return false
		}
	}
	return true
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
