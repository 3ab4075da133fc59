package models

import (
	"strings"
	"time"
)

// UserRole names one of the roles a user may hold. Users can hold several.
type UserRole string

const (
	RoleStudent        UserRole = "student"
	RoleTeacher        UserRole = "teacher"
	RoleAdmin          UserRole = "admin"
	RoleGPT4Privileged UserRole = "gpt_4_privileged"
)

// AllRoles lists every known role in display order.
var AllRoles = []UserRole{RoleStudent, RoleTeacher, RoleAdmin, RoleGPT4Privileged}

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// User represents an account stored in the users table. Roles are loaded from
// user_roles separately.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	Username     string     `db:"username" json:"username"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FirstName    string     `db:"first_name" json:"first_name"`
	LastName     string     `db:"last_name" json:"last_name"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	Roles        []UserRole `db:"-" json:"roles"`
}

// FullName falls back to the username when no name is set.
func (u *User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// HasRole reports whether the user holds any of the given roles.
func (u *User) HasRole(roles ...UserRole) bool {
	return hasAnyRole(u.Roles, roles)
}

func hasAnyRole(held, wanted []UserRole) bool {
	for _, h := range held {
		for _, w := range wanted {
			if h == w {
				return true
			}
		}
	}
	return false
}

// LoginEvent records one successful login.
type LoginEvent struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	LoggedInAt time.Time `db:"logged_in_at" json:"logged_in_at"`
	IPAddress  *string   `db:"ip_address" json:"ip_address,omitempty"`
}

// LoginActivity aggregates login events per user.
type LoginActivity struct {
	UserID    string    `db:"user_id" json:"user_id"`
	Username  string    `db:"username" json:"username"`
	Email     string    `db:"email" json:"email"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Total     int       `db:"total" json:"total"`
	LastSeen  time.Time `db:"last_seen" json:"last_seen"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
