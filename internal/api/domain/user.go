package domain

import "time"

type User struct {
	ID           string
	OrgID        string
	Email        string
	PasswordHash string // argon2 encoded
	FirstName    string
	LastName     string
	Superuser    bool
	Active       bool
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Organization is the tenant every user and every row of platform data hangs
// off. Slug is unique and URL-safe.
type Organization struct {
	ID        string
	Name      string
	Slug      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
