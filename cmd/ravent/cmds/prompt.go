package cmds

import (
	"strings"

	"github.com/pkg/errors"
	input "github.com/tcnksm/go-input"
)

// prompter asks for values on the command's stdin when no form can be
// shown. One UI is shared so buffered input carries over between questions.
type prompter struct {
	ui *input.UI
}

func (a *App) prompter() *prompter {
	if a.ask == nil {
		a.ask = &prompter{ui: &input.UI{Writer: a.Err, Reader: a.In}}
	}
	return a.ask
}

func (p *prompter) required(query string) (string, error) {
	v, err := p.ui.Ask(query, &input.Options{
		Required:  true,
		Loop:      true,
		HideOrder: true,
	})
	if err != nil {
		return "", errors.Wrapf(err, "read %s", strings.ToLower(query))
	}
	return strings.TrimSpace(v), nil
}

func (p *prompter) optional(query string) (string, error) {
	v, err := p.ui.Ask(query, &input.Options{HideOrder: true})
	if err != nil {
		return "", errors.Wrapf(err, "read %s", strings.ToLower(query))
	}
	return strings.TrimSpace(v), nil
}

func (p *prompter) confirm(query string) (bool, error) {
	answer, err := p.ui.Ask(query+" [y/n]", &input.Options{
		Default:   "n",
		Required:  true,
		Loop:      true,
		HideOrder: true,
		ValidateFunc: func(answer string) error {
			switch answer {
			case "y", "Y", "n", "N":
				return nil
			default:
				return errors.Errorf("please enter 'y' or 'n'")
			}
		},
	})
	if err != nil {
		return false, errors.Wrap(err, "read confirmation")
	}
	return answer == "y" || answer == "Y", nil
}
