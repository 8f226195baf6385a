package cmds

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/ravent/pkg/gateway"
)

var ErrNotLoggedIn = errors.New("Not logged in. Run `ravent login` first.")

// UserError is printed as Message; Cause only goes to the log.
type UserError struct {
	Message string
	Cause   error
}

func (e *UserError) Error() string { return e.Message }

func (e *UserError) Unwrap() error { return e.Cause }

// explain turns a service error into the line shown to the user. An
// invalidated session always points the user back to login.
func explain(err error, fallback string) error {
	if err == nil {
		return nil
	}
	log.Debug().Err(err).Msg("command failed")
	if errors.Is(err, ErrNotLoggedIn) {
		return err
	}
	if gateway.Classify(err) == gateway.KindAuth {
		return &UserError{Message: gateway.SessionExpiredErrorMessage + " Run `ravent login`.", Cause: err}
	}
	return &UserError{Message: gateway.UserMessage(err, fallback), Cause: err}
}
