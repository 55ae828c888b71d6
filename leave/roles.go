package leave

import (
	"fmt"
	"strings"
)

// Role is a position in the approval hierarchy.
type Role string

const (
	RoleEmployee Role = "EMPLOYEE"
	RoleDeptHead Role = "DEPT_HEAD"
	RoleHRAdmin  Role = "HR_ADMIN"
	RoleHRHead   Role = "HR_HEAD"
	RoleCEO      Role = "CEO"
)

// hierarchy is ordered from least to most senior.
var hierarchy = []Role{RoleEmployee, RoleDeptHead, RoleHRAdmin, RoleHRHead, RoleCEO}

// Rank is the role's seniority, 0 for EMPLOYEE. Unknown roles rank -1.
func (r Role) Rank() int {
	for i, h := range hierarchy {
		if h == r {
			return i
		}
	}
	return -1
}

func (r Role) Valid() bool { return r.Rank() >= 0 }

// HasApprovalAuthority reports whether the role may issue a terminal
// approval. DEPT_HEAD only routes.
func (r Role) HasApprovalAuthority() bool {
	return r.Rank() >= RoleHRAdmin.Rank()
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
