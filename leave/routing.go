package leave

import "fmt"

// Hop is one resolved position in an approval route.
type Hop struct {
	Role       Role `json:"role"`
	CanApprove bool `json:"can_approve"`
}

// Route is the chain a request follows, fixed at submission time so the
// next role is never recomputed mid-chain.
type Route []Hop

// Roles lists the route's roles in order.
func (r Route) Roles() []Role {
	out := make([]Role, len(r))
	for i, h := range r {
		out[i] = h.Role
	}
	return out
}

// ResolveRoute turns a policy's role template into the concrete route for
// a requester:
//
//   - hops at or below the requester's rank are dropped, so nobody routes
//     their own leave through themselves or a junior;
//   - if the remainder is empty or ends on a role without approval
//     authority, the next authority above the requester is appended;
//   - the CEO, having nobody above, is routed to HR_HEAD.
//
// Only the last hop can approve.
func ResolveRoute(template []Role, requester Role) (Route, error) {
	if !requester.Valid() {
		return nil, fmt.Errorf("resolve route: unknown requester role %q", requester)
	}

	var route Route
	floor := requester.Rank()
	for _, role := range template {
		if !role.Valid() {
			return nil, fmt.Errorf("resolve route: unknown role %q in chain", role)
		}
		if role.Rank() > floor {
			route = append(route, Hop{Role: role})
			floor = role.Rank()
		}
	}

	if len(route) == 0 || !route[len(route)-1].Role.HasApprovalAuthority() {
		route = append(route, Hop{Role: escalationFor(requester, route)})
	}
	route[len(route)-1].CanApprove = true
	return route, nil
}

// escalationFor picks the most junior authority senior to everyone on the
// route so far.
func escalationFor(requester Role, route Route) Role {
	floor := requester.Rank()
	if len(route) > 0 {
		floor = route[len(route)-1].Role.Rank()
	}
	for _, r := range hierarchy {
		if r.HasApprovalAuthority() && r.Rank() > floor {
			return r
		}
	}
	return RoleHRHead
}
