package domain

import "time"

// User roles
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// User is a person who creates jobs or is assigned steps
type User struct {
	ID        string
	Name      string
	Email     string
	Role      string
	CreatedAt time.Time
}

// IsAdmin reports whether the user may perform administrative operations
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// ValidRole reports whether role is known
func ValidRole(role string) bool {
	return role == RoleMember || role == RoleAdmin
}

// Project groups jobs
type Project struct {
	ID        string
	Code      string
	Name      string
	CreatedAt time.Time
}
