package cmds

import (
	"bufio"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/ravent/pkg/accounts"
	"github.com/go-go-golems/ravent/pkg/session"
	"github.com/go-go-golems/ravent/pkg/ui"
)

var errAborted = errors.New("aborted")

func readPasswordLine(a *App) (string, error) {
	line, err := bufio.NewReader(a.In).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.Wrap(err, "read password from stdin")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// collectCredentials fills missing fields with a huh form on a terminal,
// or with line prompts otherwise.
func collectCredentials(cmd *cobra.Command, a *App, c *ui.Credentials, register bool) error {
	missing := c.Username == "" || c.Password == ""
	if !missing {
		return nil
	}
	if a.Interactive() {
		form := ui.NewLoginForm(c)
		if register {
			form = ui.NewRegisterForm(c)
		}
		if err := form.RunWithContext(cmd.Context()); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return errAborted
			}
			return errors.Wrap(err, "form")
		}
		return nil
	}

	p := a.prompter()
	var err error
	if c.Username == "" {
		if c.Username, err = p.required("Username"); err != nil {
			return err
		}
	}
	if register && c.Email == "" {
		if c.Email, err = p.optional("Email (optional)"); err != nil {
			return err
		}
	}
	if c.Password == "" {
		if c.Password, err = p.required("Password"); err != nil {
			return err
		}
	}
	return nil
}

func newLoginCommand(r *root) *cobra.Command {
	var creds ui.Credentials
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and keep the session on this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := r.app
			if passwordStdin {
				pw, err := readPasswordLine(a)
				if err != nil {
					return err
				}
				creds.Password = pw
			}
			if err := collectCredentials(cmd, a, &creds, false); err != nil {
				if errors.Is(err, errAborted) {
					return nil
				}
				return err
			}

			profile, err := a.Accounts.Login(cmd.Context(), creds.Username, creds.Password)
			if err != nil {
				log.Debug().Err(err).Msg("login failed")
				return &UserError{Message: accounts.LoginErrorMessage(err), Cause: err}
			}
			a.Printf("Logged in as %s.\n", profile.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&creds.Username, "username", "u", "", "Username")
	cmd.Flags().StringVar(&creds.Password, "password", "", "Password (prefer --password-stdin)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	return cmd
}

func newRegisterCommand(r *root) *cobra.Command {
	var creds ui.Credentials
	var passwordStdin, loginAfter bool

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a RavenT account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := r.app
			if passwordStdin {
				pw, err := readPasswordLine(a)
				if err != nil {
					return err
				}
				creds.Password = pw
			}
			if err := collectCredentials(cmd, a, &creds, true); err != nil {
				if errors.Is(err, errAborted) {
					return nil
				}
				return err
			}

			if err := a.Accounts.Register(cmd.Context(), creds.Username, creds.Email, creds.Password); err != nil {
				log.Debug().Err(err).Msg("registration failed")
				return &UserError{Message: accounts.RegisterErrorMessage(err), Cause: err}
			}
			a.Printf("Account %s created.\n", strings.TrimSpace(creds.Username))

			if !loginAfter {
				a.Printf("Run `ravent login` to sign in.\n")
				return nil
			}
			profile, err := a.Accounts.Login(cmd.Context(), creds.Username, creds.Password)
			if err != nil {
				return &UserError{Message: accounts.LoginErrorMessage(err), Cause: err}
			}
			a.Printf("Logged in as %s.\n", profile.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&creds.Username, "username", "u", "", "Username")
	cmd.Flags().StringVar(&creds.Email, "email", "", "Email address (optional)")
	cmd.Flags().StringVar(&creds.Password, "password", "", "Password (prefer --password-stdin)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	cmd.Flags().BoolVar(&loginAfter, "login", false, "Log in right after the account is created")
	return cmd
}

func newLogoutCommand(r *root) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := r.app.Accounts.Logout(cmd.Context()); err != nil {
				return err
			}
			r.app.Printf("Logged out.\n")
			return nil
		},
	}
}

type statusView struct {
	LoggedIn bool               `json:"logged_in" yaml:"logged_in"`
	Username string             `json:"username,omitempty" yaml:"username,omitempty"`
	APIURL   string             `json:"api_url" yaml:"api_url"`
	Storage  string             `json:"storage" yaml:"storage"`
	Token    *session.TokenInfo `json:"token,omitempty" yaml:"token,omitempty"`
	Expired  bool               `json:"token_expired,omitempty" yaml:"token_expired,omitempty"`
	Profile  *accounts.Profile  `json:"profile,omitempty" yaml:"profile,omitempty"`
}

func newStatusCommand(r *root) *cobra.Command {
	var output string
	var check bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			a := r.app
			ctx := cmd.Context()

			sess, err := a.Store.Load(ctx)
			if err != nil {
				return err
			}
			v := statusView{
				APIURL:  a.Settings.APIURL,
				Storage: a.Settings.StoragePath,
			}
			if a.Settings.Ephemeral {
				v.Storage = "memory"
			}
			if strings.TrimSpace(sess.AccessToken) != "" {
				v.LoggedIn = true
				v.Username = sess.Username
				if info, err := session.InspectToken(sess.AccessToken); err == nil {
					v.Token = &info
					v.Expired = info.Expired(time.Now())
				} else {
					log.Debug().Err(err).Msg("access token is not a readable JWT")
				}
			}

			if check && v.LoggedIn {
				p, err := a.Accounts.Profile(ctx)
				if err != nil {
					return explain(err, "Could not verify the session.")
				}
				v.Profile = &p
			}

			if output != outputText {
				return writeStructured(a.Out, output, v)
			}
			if !v.LoggedIn {
				a.Printf("Not logged in (api: %s).\n", v.APIURL)
				return nil
			}
			a.Printf("Logged in as %s (api: %s).\n", v.Username, v.APIURL)
			if v.Token != nil && v.Token.ExpiresAt != nil {
				state := "expires"
				if v.Expired {
					state = "expired"
				}
				a.Printf("Access token %s %s.\n", state, v.Token.ExpiresAt.Local().Format(time.RFC1123))
			}
			if v.Profile != nil {
				a.Printf("Verified with the server: %s <%s>.\n", v.Profile.Username, v.Profile.Email)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format (text, yaml, json)")
	cmd.Flags().BoolVar(&check, "check", false, "Verify the session against the server")
	return cmd
}
