package cmds

import (
	"bufio"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/ravent/pkg/conversation"
	"github.com/go-go-golems/ravent/pkg/gateway"
	"github.com/go-go-golems/ravent/pkg/ui"
)

const modeBoth = "both"

func newChatCommand(r *root) *cobra.Command {
	var modeFlag string
	cmd := &cobra.Command{
		Use:         "chat",
		Short:       "Chat with your documents",
		Long:        "Opens a full-screen chat on a terminal. When stdin is not a terminal, each input line is sent as a question and answers are printed.",
		Args:        cobra.NoArgs,
		Annotations: tuiAnnotation(),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := conversation.ParseMode(modeFlag)
			if err != nil {
				return err
			}
			a := r.app
			if err := a.RequireSession(cmd.Context()); err != nil {
				return err
			}
			if a.Interactive() {
				return runChatTUI(cmd, a, mode)
			}
			return runChatLines(cmd, a, mode)
		},
	}
	cmd.Flags().StringVarP(&modeFlag, "mode", "m", string(conversation.ModeNaive), "RAG mode (naive, light)")
	return cmd
}

func runChatTUI(cmd *cobra.Command, a *App, mode conversation.Mode) error {
	feed := ui.NewMessageFeed()
	ctrl, err := a.NewController(mode, feed.Observe)
	if err != nil {
		return err
	}
	model := ui.NewChatModel(cmd.Context(), ctrl, mode, feed)
	final, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
	if err != nil {
		return errors.Wrap(err, "chat view")
	}
	if cm, ok := final.(ui.ChatModel); ok && cm.SessionExpired() {
		return &UserError{Message: gateway.SessionExpiredErrorMessage + " Run `ravent login`.", Cause: gateway.ErrSessionInvalid}
	}
	return nil
}

// runChatLines is the non-terminal chat: one question per line.
func runChatLines(cmd *cobra.Command, a *App, mode conversation.Mode) error {
	ctrl, err := a.NewController(mode)
	if err != nil {
		return err
	}
	scanner := bufio.NewScanner(a.In)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		msg, err := ctrl.Send(cmd.Context(), line)
		if err != nil {
			return err
		}
		if msg.Status == conversation.StatusError && errors.Is(msg.Err, gateway.ErrSessionInvalid) {
			return explain(msg.Err, conversation.ErrorText)
		}
		a.Printf("%s\n\n", msg.Text)
	}
	return errors.Wrap(scanner.Err(), "read questions")
}

func parseModes(s string) ([]conversation.Mode, error) {
	if strings.EqualFold(strings.TrimSpace(s), modeBoth) {
		return conversation.Modes, nil
	}
	m, err := conversation.ParseMode(s)
	if err != nil {
		return nil, err
	}
	return []conversation.Mode{m}, nil
}

type askResult struct {
	Mode    conversation.Mode `json:"mode" yaml:"mode"`
	Status  string            `json:"status" yaml:"status"`
	Answer  string            `json:"answer" yaml:"answer"`
	Sources []string          `json:"sources,omitempty" yaml:"sources,omitempty"`
}

func newAskCommand(r *root) *cobra.Command {
	var modeFlag, output string
	var copyAnswer, raw bool

	cmd := &cobra.Command{
		Use:   "ask QUESTION...",
		Short: "Ask a single question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			modes, err := parseModes(modeFlag)
			if err != nil {
				return err
			}
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return conversation.ErrEmptyMessage
			}
			a := r.app
			if err := a.RequireSession(cmd.Context()); err != nil {
				return err
			}

			ctrls := make([]*conversation.Controller, len(modes))
			for i, mode := range modes {
				if ctrls[i], err = a.NewController(mode); err != nil {
					return err
				}
			}

			results := make([]conversation.Message, len(modes))
			g, ctx := errgroup.WithContext(cmd.Context())
			for i, ctrl := range ctrls {
				i, ctrl := i, ctrl
				g.Go(func() error {
					msg, err := ctrl.Send(ctx, question)
					if err != nil {
						return err
					}
					results[i] = msg
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			for _, msg := range results {
				if msg.Status == conversation.StatusError && errors.Is(msg.Err, gateway.ErrSessionInvalid) {
					return explain(msg.Err, conversation.ErrorText)
				}
			}

			var failed error
			view := make([]askResult, len(results))
			for i, msg := range results {
				view[i] = askResult{Mode: modes[i], Status: string(msg.Status), Answer: msg.Text, Sources: msg.Sources}
				if msg.Status == conversation.StatusError {
					log.Debug().Err(msg.Err).Str("mode", string(modes[i])).Msg("question failed")
					failed = &UserError{Message: conversation.ErrorText, Cause: msg.Err}
				}
			}

			if output != outputText {
				if err := writeStructured(a.Out, output, view); err != nil {
					return err
				}
			} else {
				render := !raw && a.OutputIsTerminal()
				for i, res := range view {
					if len(view) > 1 {
						if i > 0 {
							a.Printf("\n")
						}
						a.Printf("== %s ==\n", res.Mode.Title())
					}
					text := res.Answer
					if render && res.Status == string(conversation.StatusResolved) {
						text = ui.RenderMarkdown(text)
					}
					a.Printf("%s\n", strings.TrimRight(text, "\n"))
					if len(res.Sources) > 0 {
						a.Printf("Sources: %s\n", strings.Join(res.Sources, ", "))
					}
				}
			}

			if copyAnswer {
				if last := lastResolved(results); last != "" {
					if err := clipboard.WriteAll(last); err != nil {
						log.Warn().Err(err).Msg("could not copy answer to clipboard")
					}
				}
			}
			return failed
		},
	}
	cmd.Flags().StringVarP(&modeFlag, "mode", "m", string(conversation.ModeNaive), "RAG mode (naive, light, both)")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format (text, yaml, json)")
	cmd.Flags().BoolVar(&copyAnswer, "copy", false, "Copy the answer to the clipboard")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the answer without markdown rendering")
	return cmd
}

func lastResolved(msgs []conversation.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Status == conversation.StatusResolved {
			return msgs[i].Text
		}
	}
	return ""
}
