package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
)

const maxIdentifierLength = 254

// NormalizeIdentifier lower-cases and trims an identifier. Lookups and
// uniqueness are on the normalized form.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// Credentials is the credential store: user records plus argon2id hashing.
type Credentials struct {
	Store  store.Store
	Hasher *cryptox.Hasher
	Now    func() time.Time
}

func (c *Credentials) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

// FindByIdentifier returns store.ErrNotFound for unknown identifiers.
func (c *Credentials) FindByIdentifier(ctx context.Context, identifier string) (domain.User, error) {
	return c.Store.Users().GetUserByIdentifier(ctx, NormalizeIdentifier(identifier))
}

func (c *Credentials) FindByID(ctx context.Context, id string) (domain.User, error) {
	return c.Store.Users().GetUserByID(ctx, id)
}

// Create hashes rawPassword and inserts the user. The store is untouched
// when the identifier is taken.
func (c *Credentials) Create(ctx context.Context, identifier, rawPassword string, profile domain.Profile) (domain.User, error) {
	identifier = NormalizeIdentifier(identifier)
	if identifier == "" || len(identifier) > maxIdentifierLength || strings.ContainsAny(identifier, " \t\r\n") {
		return domain.User{}, fmt.Errorf("%w: identifier", ErrValidation)
	}

	if _, err := c.FindByIdentifier(ctx, identifier); err == nil {
		return domain.User{}, ErrDuplicateIdentifier
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, err
	}

	hash, err := c.Hasher.Hash(rawPassword)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := c.now()
	u := domain.User{
		ID:           idx.NewAt(now).String(),
		Identifier:   identifier,
		Name:         strings.TrimSpace(profile.Name),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := c.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrDuplicateIdentifier
		}
		return domain.User{}, err
	}
	return u, nil
}

// VerifyPassword compares in constant time. Any mismatch or unreadable hash
// is ErrInvalidCredentials.
func (c *Credentials) VerifyPassword(u domain.User, rawPassword string) error {
	if err := c.Hasher.Verify(rawPassword, u.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// VerifyDummy burns the same work as VerifyPassword for a user that does
// not exist. It always fails.
func (c *Credentials) VerifyDummy(rawPassword string) error {
	_ = c.Hasher.VerifyDummy(rawPassword)
	return ErrInvalidCredentials
}

// SetPassword replaces the user's hash.
func (c *Credentials) SetPassword(ctx context.Context, userID, rawPassword string) error {
	hash, err := c.Hasher.Hash(rawPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return c.Store.Users().UpdatePasswordHash(ctx, userID, hash)
}
