package ui

import (
	"context"
	"strings"

	"github.com/atotto/clipboard"
	bspinner "github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/ravent/pkg/conversation"
	"github.com/go-go-golems/ravent/pkg/gateway"
)

const (
	PlaceholderText = "..."
	emptyHint       = "Ask a question about your documents."
	chatHelp        = "enter send • ctrl+y copy last answer • pgup/pgdn scroll • esc quit"
)

// ChatSender is implemented by *conversation.Controller.
type ChatSender interface {
	Send(ctx context.Context, text string) (conversation.Message, error)
}

type sendDoneMsg struct {
	message conversation.Message
	err     error
}

type ChatModel struct {
	ctx      context.Context
	chat     ChatSender
	mode     conversation.Mode
	feed     *MessageFeed
	renderer Renderer
	copyFn   func(string) error
	logger   zerolog.Logger

	input    textinput.Model
	viewport viewport.Model
	spinner  bspinner.Model

	messages       []conversation.Message
	sending        bool
	notice         string
	sessionExpired bool
	width          int
	height         int
	ready          bool
}

type ChatOption func(*ChatModel)

func WithRenderer(r Renderer) ChatOption {
	return func(m *ChatModel) {
		m.renderer = r
	}
}

// WithClipboard replaces the system clipboard writer.
func WithClipboard(f func(string) error) ChatOption {
	return func(m *ChatModel) {
		m.copyFn = f
	}
}

// NewChatModel builds the chat view. feed must be registered as an observer
// on the controller behind chat.
func NewChatModel(ctx context.Context, chat ChatSender, mode conversation.Mode, feed *MessageFeed, options ...ChatOption) ChatModel {
	ti := textinput.New()
	ti.Placeholder = "Type your question..."
	ti.Prompt = "> "
	ti.CharLimit = 4000
	ti.Focus()

	sp := bspinner.New()
	sp.Spinner = bspinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)

	m := ChatModel{
		ctx:      ctx,
		chat:     chat,
		mode:     mode,
		feed:     feed,
		renderer: NewMarkdownRenderer("dark"),
		copyFn:   clipboard.WriteAll,
		logger:   log.With().Str("component", "chat-ui").Logger(),
		input:    ti,
		viewport: viewport.New(80, 20),
		spinner:  sp,
	}
	for _, opt := range options {
		opt(&m)
	}
	m.refresh()
	return m
}

// SessionExpired reports whether the view quit because the backend
// invalidated the session.
func (m ChatModel) SessionExpired() bool { return m.sessionExpired }

func (m ChatModel) Messages() []conversation.Message { return m.messages }

func (m ChatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForMessages(m.feed))
}

func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.refresh()
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			return m.submit()
		case "ctrl+y":
			m.copyLastAnswer()
			return m, nil
		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case messagesUpdatedMsg:
		m.messages = msg.messages
		m.refresh()
		return m, waitForMessages(m.feed)

	case sendDoneMsg:
		m.sending = false
		if msg.err != nil {
			m.notice = msg.err.Error()
			return m, nil
		}
		if msg.message.Status == conversation.StatusError && errors.Is(msg.message.Err, gateway.ErrSessionInvalid) {
			m.logger.Info().Msg("session invalidated, leaving chat")
			m.sessionExpired = true
			return m, tea.Quit
		}
		return m, nil

	case bspinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m ChatModel) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if m.sending {
		m.notice = "Please wait for the current answer."
		return m, nil
	}
	m.sending = true
	m.notice = ""
	m.input.Reset()

	ctx, chat := m.ctx, m.chat
	return m, func() tea.Msg {
		message, err := chat.Send(ctx, text)
		return sendDoneMsg{message: message, err: err}
	}
}

func (m *ChatModel) copyLastAnswer() {
	for i := len(m.messages) - 1; i >= 0; i-- {
		msg := m.messages[i]
		if msg.Sender != conversation.SenderBot || msg.Status != conversation.StatusResolved {
			continue
		}
		if err := m.copyFn(msg.Text); err != nil {
			m.logger.Warn().Err(err).Msg("clipboard write failed")
			m.notice = "Could not copy to clipboard."
			return
		}
		m.notice = "Copied last answer to clipboard."
		return
	}
	m.notice = "No answer to copy yet."
}

func (m *ChatModel) resize() {
	w := m.width - transcriptPane.GetHorizontalFrameSize()
	if w < 20 {
		w = 20
	}
	// title, status line, input pane and help line
	h := m.height - transcriptPane.GetVerticalFrameSize() - 6
	if h < 3 {
		h = 3
	}
	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 4
}

// refresh re-renders the transcript and scrolls to the newest message.
func (m *ChatModel) refresh() {
	m.viewport.SetContent(RenderTranscript(m.messages, m.viewport.Width, m.renderer))
	m.viewport.GotoBottom()
}

func (m ChatModel) View() string {
	var status []string
	if m.sending {
		status = append(status, m.spinner.View()+" "+pendingStyle.Render("Waiting for answer..."))
	}
	if m.notice != "" {
		status = append(status, noticeStyle.Render(m.notice))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(m.mode.Title()),
		transcriptPane.Render(m.viewport.View()),
		strings.Join(status, "  "),
		inputPane.Render(m.input.View()),
		helpStyle.Render(chatHelp),
	)
}

// RenderTranscript renders messages oldest first. Pending bot messages show
// the placeholder; failed ones show their error text.
func RenderTranscript(messages []conversation.Message, width int, r Renderer) string {
	if len(messages) == 0 {
		return helpStyle.Render(emptyHint)
	}
	if r == nil {
		r = PlainRenderer{}
	}
	blocks := make([]string, 0, len(messages))
	for _, msg := range messages {
		var sb strings.Builder
		if msg.Sender == conversation.SenderUser {
			sb.WriteString(userLabelStyle.Render("You"))
			sb.WriteString("\n")
			sb.WriteString(msg.Text)
			blocks = append(blocks, sb.String())
			continue
		}
		sb.WriteString(botLabelStyle.Render("RavenT"))
		sb.WriteString("\n")
		switch msg.Status {
		case conversation.StatusPending:
			sb.WriteString(pendingStyle.Render(PlaceholderText))
		case conversation.StatusError:
			sb.WriteString(errorStyle.Render(msg.Text))
		default:
			sb.WriteString(r.Render(msg.Text, width))
			if len(msg.Sources) > 0 {
				sb.WriteString("\n")
				sb.WriteString(sourceStyle.Render("Sources: " + strings.Join(msg.Sources, ", ")))
			}
		}
		blocks = append(blocks, sb.String())
	}
	return strings.Join(blocks, "\n\n")
}
