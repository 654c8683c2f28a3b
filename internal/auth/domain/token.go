package domain

import "time"

// Token is an issued, signed session credential.
type Token struct {
	Subject   string // User.ID
	TokenID   string // jti, unique per issuance
	IssuedAt  time.Time
	ExpiresAt time.Time
	Raw       string // compact JWS
}

// Session is the result of a successful verification.
type Session struct {
	User  User
	Token Token
}
