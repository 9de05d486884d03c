package users

import (
	"fmt"
	"strings"
	"unicode"
)

// Role is a named set of permissions issued by the server.
type Role struct {
	ID          int64    `json:"id,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
	IsActive    bool     `json:"is_active"`
}

// Location is the restaurant site a user belongs to.
type Location struct {
	ID      int64  `json:"id,omitempty"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

// User is the authenticated profile. The session manager is its only writer.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Role      *Role     `json:"role,omitempty"`
	Location  *Location `json:"location,omitempty"`
	IsActive  bool      `json:"is_active"`
}

// FullName joins first and last name, falling back to the username.
func (u *User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// RoleName returns the name of the user's role, or "" without one.
func (u *User) RoleName() string {
	if u == nil || u.Role == nil {
		return ""
	}
	return u.Role.Name
}

// Permissions returns the permission set carried by the user's role.
// An inactive role grants nothing.
func (u *User) Permissions() map[string]struct{} {
	set := make(map[string]struct{})
	if u == nil || u.Role == nil || !u.Role.IsActive {
		return set
	}
	for _, p := range u.Role.Permissions {
		set[p] = struct{}{}
	}
	return set
}

func (u *User) HasPermission(permission string) bool {
	_, ok := u.Permissions()[permission]
	return ok
}

func (u *User) HasRole(role string) bool {
	return u.RoleName() != "" && u.RoleName() == role
}

// Clone returns a deep copy so callers can't mutate session-owned state.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Role != nil {
		r := *u.Role
		r.Permissions = append([]string(nil), u.Role.Permissions...)
		c.Role = &r
	}
	if u.Location != nil {
		l := *u.Location
		c.Location = &l
	}
	return &c
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}
