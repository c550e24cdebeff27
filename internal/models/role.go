package models

// Staff roles issued by the auth service
const (
	RoleAdmin     = "admin"
	RoleLogistics = "logistics"
	RoleViewer    = "viewer"
)

// ValidRoles defines the available roles in the system
var ValidRoles = []string{
	RoleViewer,
	RoleLogistics,
	RoleAdmin,
}

// IsValidRole checks if a role is valid
func IsValidRole(role string) bool {
	for _, validRole := range ValidRoles {
		if role == validRole {
			return true
		}
	}
	return false
}

// ValidateRoles checks if all provided roles are valid
func ValidateRoles(roles []string) bool {
	for _, role := range roles {
		if !IsValidRole(role) {
			return false
		}
	}
	return len(roles) > 0
}
