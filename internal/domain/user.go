package domain

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// IsValid checks if the role is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	}
	return false
}

// HasPermission reports whether r grants at least the access of required.
func (r Role) HasPermission(required Role) bool {
	return roleLevel(r) >= roleLevel(required)
}

func roleLevel(r Role) int {
	switch r {
	case RoleAdmin:
		return 2
	case RoleUser:
		return 1
	default:
		return 0
	}
}

// Profile is the public part of a user.
type Profile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type User struct {
	ID        string    `json:"id"`
	Profile   Profile   `json:"profile"`
	Password  string    `json:"-"`
	Memo      *string   `json:"memo,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserChanges lists the user fields an update may touch. Nil fields are left as is.
type UserChanges struct {
	Name     *string
	Password *string
	Memo     *string
	Role     *Role
}

// IsEmpty reports whether no field is set.
func (c UserChanges) IsEmpty() bool {
	return c.Name == nil && c.Password == nil && c.Memo == nil && c.Role == nil
}

// Claims is the decoded payload of a session token.
type Claims struct {
	Subject   string
	Email     string
	Role      Role
	ExpiresAt time.Time
}
