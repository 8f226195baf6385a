package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/go-go-golems/ravent/pkg/conversation"
)

// MessageFeed hands conversation snapshots from the controller to the
// bubbletea loop. Only the latest snapshot is kept, so Observe never
// blocks and the final state is never lost.
type MessageFeed struct {
	mu     sync.Mutex
	latest []conversation.Message
	notify chan struct{}
}

func NewMessageFeed() *MessageFeed {
	return &MessageFeed{notify: make(chan struct{}, 1)}
}

// Observe satisfies conversation.Observer.
func (f *MessageFeed) Observe(messages []conversation.Message) {
	f.mu.Lock()
	f.latest = messages
	f.mu.Unlock()
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

func (f *MessageFeed) take() []conversation.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest
}

type messagesUpdatedMsg struct {
	messages []conversation.Message
}

func waitForMessages(f *MessageFeed) tea.Cmd {
	return func() tea.Msg {
		<-f.notify
		return messagesUpdatedMsg{messages: f.take()}
	}
}
