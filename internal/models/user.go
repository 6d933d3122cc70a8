package models

import (
	"strings"
	"time"
)

// AuthMethod identifies how an account authenticates on the platform.
type AuthMethod string

// Supported authentication methods.
const (
	AuthMethodManual AuthMethod = "manual"
	AuthMethodOIDC   AuthMethod = "oidc"
)

// User is a platform account.
type User struct {
	ID           string     `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	Email        string     `db:"email" json:"email"`
	FirstName    string     `db:"first_name" json:"first_name"`
	LastName     string     `db:"last_name" json:"last_name"`
	AuthMethod   AuthMethod `db:"auth_method" json:"auth_method"`
	Confirmed    bool       `db:"confirmed" json:"confirmed"`
	Suspended    bool       `db:"suspended" json:"suspended"`
	PasswordHash string     `db:"password_hash" json:"-"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName returns "First Last" trimmed.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
