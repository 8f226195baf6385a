package conversation

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Mode selects the RAG strategy the backend uses to answer.
type Mode string

const (
	ModeNaive Mode = "naive"
	ModeLight Mode = "light"
)

var Modes = []Mode{ModeNaive, ModeLight}

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeNaive:
		return ModeNaive, nil
	case ModeLight:
		return ModeLight, nil
	default:
		return "", errors.Errorf("unknown mode %q (expected naive or light)", s)
	}
}

// Title is the heading the chat view shows for the mode.
func (m Mode) Title() string {
	switch m {
	case ModeLight:
		return "Light RAG Chat"
	default:
		return "Naive RAG Chat"
	}
}

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusError    Status = "error"
)

// Message is one entry of a conversation. ID is stable for the lifetime of
// the message; the pending bot placeholder is resolved by ID.
type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Sources   []string  `json:"sources,omitempty"`

	// Err is the cause of a StatusError message. It is not shown to the
	// user; callers inspect it to detect an invalidated session.
	Err error `json:"-"`
}

func (m Message) IsPending() bool { return m.Status == StatusPending }

func (m Message) clone() Message {
	if m.Sources != nil {
		m.Sources = append([]string(nil), m.Sources...)
	}
	return m
}
