package cmds

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/ravent/pkg/accounts"
	"github.com/go-go-golems/ravent/pkg/config"
	"github.com/go-go-golems/ravent/pkg/conversation"
	"github.com/go-go-golems/ravent/pkg/events"
	"github.com/go-go-golems/ravent/pkg/files"
	"github.com/go-go-golems/ravent/pkg/gateway"
	"github.com/go-go-golems/ravent/pkg/session"
)

// App holds everything a command needs once settings are resolved.
type App struct {
	Settings config.Settings
	Store    *session.Store
	Gateway  *gateway.Gateway
	Accounts *accounts.Service
	Files    *files.Service

	In  io.Reader
	Out io.Writer
	Err io.Writer

	bus *events.Bus
	ask *prompter
}

func NewApp(s config.Settings) (*App, error) {
	var store *session.Store
	if s.Ephemeral {
		store = session.NewStore(session.NewMemoryStorage())
	} else {
		path := s.StoragePath
		store = session.NewLazyStore(func() (session.Storage, error) {
			return session.OpenSQLiteStorageFile(path)
		})
	}

	gw, err := gateway.New(s.APIURL, store)
	if err != nil {
		return nil, err
	}

	return &App{
		Settings: s,
		Store:    store,
		Gateway:  gw,
		Accounts: accounts.NewService(gw, store),
		Files:    files.NewService(gw),
		In:       os.Stdin,
		Out:      os.Stdout,
		Err:      os.Stderr,
	}, nil
}

// Interactive reports whether both stdin and stdout are terminals.
func (a *App) Interactive() bool {
	in, ok := a.In.(*os.File)
	if !ok {
		return false
	}
	out, ok := a.Out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(in.Fd()) && isatty.IsTerminal(out.Fd())
}

func (a *App) OutputIsTerminal() bool {
	out, ok := a.Out.(*os.File)
	return ok && isatty.IsTerminal(out.Fd())
}

// RequireSession fails with ErrNotLoggedIn when no access token is stored.
func (a *App) RequireSession(ctx context.Context) error {
	if !a.Store.IsAuthenticated(ctx) {
		return ErrNotLoggedIn
	}
	return nil
}

// Bus returns the event bus mirroring conversations, creating it on first use.
func (a *App) Bus() (*events.Bus, error) {
	if a.bus != nil {
		return a.bus, nil
	}
	b, err := events.NewBus(events.Settings{
		Redis: a.Settings.Redis.Enabled,
		Addr:  a.Settings.Redis.Addr,
		Topic: a.Settings.Redis.Stream,
	})
	if err != nil {
		return nil, err
	}
	a.bus = b
	return b, nil
}

// NewController builds a conversation for mode. Updates are mirrored on the
// event bus when Redis is enabled.
func (a *App) NewController(mode conversation.Mode, observers ...conversation.Observer) (*conversation.Controller, error) {
	opts := []conversation.ControllerOption{conversation.WithPathTemplate(a.Settings.RAGPath)}
	for _, o := range observers {
		opts = append(opts, conversation.WithObserver(o))
	}
	if a.Settings.Redis.Enabled {
		bus, err := a.Bus()
		if err != nil {
			return nil, errors.Wrap(err, "event bus")
		}
		opts = append(opts, conversation.WithObserver(bus.Observer(uuid.NewString(), mode)))
	}
	return conversation.NewController(a.Gateway, mode, opts...)
}

func (a *App) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.Out, format, args...)
}

func (a *App) Close() error {
	var firstErr error
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			firstErr = err
		}
	}
	if err := a.Store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		log.Debug().Err(firstErr).Msg("error while shutting down")
	}
	return firstErr
}
