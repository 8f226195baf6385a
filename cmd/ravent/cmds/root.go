package cmds

import (
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/ravent/pkg/config"
	"github.com/go-go-golems/ravent/pkg/logging"
)

// annotationTUI marks commands that take over the terminal. They log to
// --log-file or nowhere.
const annotationTUI = "ravent/tui"

type root struct {
	viper     *viper.Viper
	app       *App
	logCloser io.Closer
}

func NewRootCommand() *cobra.Command {
	r := &root{viper: viper.New()}

	cmd := &cobra.Command{
		Use:           config.AppName,
		Short:         "ravent is a terminal client for the RavenT document assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return r.setup(cmd)
		},
	}
	config.AddFlags(cmd.PersistentFlags())
	// finalizers also run when a command fails
	cobra.OnFinalize(r.teardown)

	cmd.AddCommand(
		newLoginCommand(r),
		newRegisterCommand(r),
		newLogoutCommand(r),
		newStatusCommand(r),
		newFilesCommand(r),
		newChatCommand(r),
		newAskCommand(r),
		newEventsCommand(r),
	)
	return cmd
}

func (r *root) setup(cmd *cobra.Command) error {
	if err := config.InitViper(r.viper, cmd.Root()); err != nil {
		return err
	}
	settings, err := config.Load(r.viper)
	if err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	closer, err := logging.Init(logging.Settings{
		Level: settings.LogLevel,
		File:  settings.LogFile,
		Quiet: cmd.Annotations[annotationTUI] == "true",
	})
	if err != nil {
		return err
	}
	r.logCloser = closer

	app, err := NewApp(settings)
	if err != nil {
		return err
	}
	app.In = cmd.InOrStdin()
	app.Out = cmd.OutOrStdout()
	app.Err = cmd.ErrOrStderr()
	r.app = app
	return nil
}

func (r *root) teardown() {
	if r.app != nil {
		_ = r.app.Close()
		r.app = nil
	}
	if r.logCloser != nil {
		_ = r.logCloser.Close()
		r.logCloser = nil
	}
}

func tuiAnnotation() map[string]string {
	return map[string]string{annotationTUI: "true"}
}
