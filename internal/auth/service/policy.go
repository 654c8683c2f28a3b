package service

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// PasswordPolicy decides whether a new password is acceptable. Rejections
// wrap ErrWeakCredential.
type PasswordPolicy interface {
	Check(password string) error
}

// PolicyFunc adapts a function to PasswordPolicy.
type PolicyFunc func(password string) error

func (f PolicyFunc) Check(password string) error { return f(password) }

const (
	DefaultPasswordMinLength = 8
	DefaultPasswordMaxLength = 128
)

// LengthPolicy bounds the password length in characters and rejects
// passwords made only of whitespace.
type LengthPolicy struct {
	Min int
	Max int
}

func DefaultPasswordPolicy() LengthPolicy {
	return LengthPolicy{Min: DefaultPasswordMinLength, Max: DefaultPasswordMaxLength}
}

func (p LengthPolicy) Check(password string) error {
	n := utf8.RuneCountInString(password)
	if n < p.Min {
		return fmt.Errorf("%w: must be at least %d characters", ErrWeakCredential, p.Min)
	}
	if p.Max > 0 && n > p.Max {
		return fmt.Errorf("%w: must be at most %d characters", ErrWeakCredential, p.Max)
	}
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: must not be blank", ErrWeakCredential)
	}
	return nil
}

// Policies applies each policy in order and returns the first rejection.
type Policies []PasswordPolicy

func (ps Policies) Check(password string) error {
	for _, p := range ps {
		if err := p.Check(password); err != nil {
			return err
		}
	}
	return nil
}
