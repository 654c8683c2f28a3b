package domain

import "time"

// User is a registered identity. Identifier is the login name (an email
// address, stored lower-cased) and never changes once created.
type User struct {
	ID           string
	Identifier   string
	Name         string
	PasswordHash string // argon2id PHC string, never serialized
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile holds the mutable, caller-supplied fields set at registration.
type Profile struct {
	Name string
}
