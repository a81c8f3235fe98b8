package auth

// Role constants for the security operations console.
const (
	RoleViewer  = "viewer"
	RoleAnalyst = "analyst"
	RoleAdmin   = "admin"
)

// AllRoles returns every valid role.
func AllRoles() []string {
	return []string{RoleViewer, RoleAnalyst, RoleAdmin}
}

// WriteRoles returns roles that can modify data.
func WriteRoles() []string {
	return []string{RoleAnalyst, RoleAdmin}
}
