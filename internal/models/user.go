package models

// Role names as issued in the JWT by the backend.
const (
	RoleAdmin     = "admin"
	RoleLawyer    = "lawyer"
	RoleParalegal = "paralegal"
	RoleClient    = "client"
)

// User is the authenticated identity returned by /auth/login.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
	TenantID  string `json:"tenantId"`
}

// IsClient reports whether the user has the restricted client role.
func (u User) IsClient() bool {
	return u.Role == RoleClient
}
