package http

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
)

const (
	maxIdentifierLength = 254
	maxNameLength       = 200
)

// identifierRule accepts a username or an email address. Anything with an
// @ must be a well-formed email.
func identifierRule(value interface{}) error {
	s, _ := value.(string)
	s = strings.TrimSpace(s)
	if strings.ContainsAny(s, " \t\r\n") {
		return errors.New("must not contain whitespace")
	}
	if strings.Contains(s, "@") {
		return is.Email.Validate(s)
	}
	return nil
}

func validateRegister(req authsdk.RegisterRequest) error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Identifier,
			validation.Required,
			validation.Length(1, maxIdentifierLength),
			validation.By(identifierRule),
		),
		validation.Field(&req.Password, validation.Required),
		validation.Field(&req.Name, validation.Length(0, maxNameLength)),
	)
}

func validateLogin(req authsdk.LoginRequest) error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Identifier, validation.Required, validation.Length(1, maxIdentifierLength)),
		validation.Field(&req.Password, validation.Required),
	)
}

func validateChangePassword(req authsdk.ChangePasswordRequest) error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.CurrentPassword, validation.Required),
		validation.Field(&req.NewPassword, validation.Required),
	)
}
