package auth

const (
	RoleViewer         = "viewer"
	RolePayrollClerk   = "payroll_clerk"
	RolePayrollManager = "payroll_manager"
	RoleAdmin          = "admin"
)

const (
	PermSettlementsRead    = "settlements.read"
	PermSettlementsWrite   = "settlements.write"
	PermSettlementsReverse = "settlements.reverse"
	PermObligationsRead    = "obligations.read"
	PermObligationsWrite   = "obligations.write"
	PermAuditRead          = "audit.read"
)

var DefaultPermissions = []string{
	PermSettlementsRead,
	PermSettlementsWrite,
	PermSettlementsReverse,
	PermObligationsRead,
	PermObligationsWrite,
	PermAuditRead,
}

var RolePermissions = map[string][]string{
	RoleViewer: {
		PermSettlementsRead,
		PermObligationsRead,
	},
	RolePayrollClerk: {
		PermSettlementsRead,
		PermSettlementsWrite,
		PermObligationsRead,
		PermObligationsWrite,
	},
	// Reversal is kept away from the clerk who committed the settlement.
	RolePayrollManager: {
		PermSettlementsRead,
		PermSettlementsWrite,
		PermSettlementsReverse,
		PermObligationsRead,
		PermObligationsWrite,
		PermAuditRead,
	},
	RoleAdmin: DefaultPermissions,
}

func HasPermission(role, permission string) bool {
	for _, p := range RolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}
