package ui

import (
	"net/mail"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/pkg/errors"
)

type Credentials struct {
	Username string
	Email    string
	Password string
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.Errorf("%s is required", field)
		}
		return nil
	}
}

func optionalEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return errors.New("not a valid email address")
	}
	return nil
}

func NewLoginForm(c *Credentials) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().Title("Log in to RavenT"),
			huh.NewInput().
				Title("Username").
				Value(&c.Username).
				Validate(required("username")),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&c.Password).
				Validate(required("password")),
		),
	).WithTheme(huh.ThemeCharm())
}

// NewRegisterForm asks for username, optional email and password. Password
// strength rules are enforced by the backend.
func NewRegisterForm(c *Credentials) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().Title("Create a RavenT account"),
			huh.NewInput().
				Title("Username").
				Value(&c.Username).
				Validate(required("username")),
			huh.NewInput().
				Title("Email").
				Description("Optional").
				Value(&c.Email).
				Validate(optionalEmail),
			huh.NewInput().
				Title("Password").
				Description("At least 8 characters").
				EchoMode(huh.EchoModePassword).
				Value(&c.Password).
				Validate(required("password")),
		),
	).WithTheme(huh.ThemeCharm())
}
