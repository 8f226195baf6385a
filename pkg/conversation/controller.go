// Package conversation drives a single chat exchange with the RAG backend.
//
// A Controller owns an ordered message list. Send appends the user message
// and a pending bot placeholder, performs one round trip, then resolves the
// placeholder in place, either with the answer or with a fixed error text.
// Only one exchange can be in flight per controller.
package conversation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/ravent/pkg/gateway"
)

const (
	NoAnswerText = "No answer."
	ErrorText    = "Error: please try again."

	DefaultPathTemplate = "/rag/%s"
)

var (
	ErrBusy         = errors.New("a message is already being sent")
	ErrEmptyMessage = errors.New("message is empty")
)

// Observer is called with a snapshot of the message list after every
// mutation. Views use it as their scroll-to-latest signal.
type Observer func(messages []Message)

type Controller struct {
	mu        sync.Mutex
	requester gateway.Requester
	mode      Mode
	path      string
	messages  []Message
	sending   bool

	observers []Observer
	newID     func() string
	now       func() time.Time
	logger    zerolog.Logger
}

type ControllerOption func(*Controller)

func WithObserver(o Observer) ControllerOption {
	return func(c *Controller) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithPathTemplate sets the endpoint path; %s is replaced by the mode.
func WithPathTemplate(tmpl string) ControllerOption {
	return func(c *Controller) {
		if strings.TrimSpace(tmpl) != "" {
			c.path = fmt.Sprintf(tmpl, c.mode)
		}
	}
}

func WithIDGenerator(f func() string) ControllerOption {
	return func(c *Controller) {
		c.newID = f
	}
}

func WithClock(f func() time.Time) ControllerOption {
	return func(c *Controller) {
		c.now = f
	}
}

func NewController(requester gateway.Requester, mode Mode, options ...ControllerOption) (*Controller, error) {
	if requester == nil {
		return nil, errors.New("conversation: nil requester")
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	c := &Controller{
		requester: requester,
		mode:      mode,
		path:      fmt.Sprintf(DefaultPathTemplate, mode),
		newID:     uuid.NewString,
		now:       time.Now,
		logger:    log.With().Str("component", "conversation").Str("mode", string(mode)).Logger(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

func (c *Controller) Mode() Mode { return c.mode }

// Messages returns a copy of the conversation in chronological order.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Sending reports whether an exchange is in flight.
func (c *Controller) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

type askRequest struct {
	Question string `json:"question"`
}

type answerPayload struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
	Content *struct {
		Answer  string   `json:"answer"`
		Sources []string `json:"sources"`
	} `json:"content"`
}

func (p answerPayload) answer() (string, []string) {
	if p.Answer != "" {
		return p.Answer, p.Sources
	}
	if p.Content != nil && p.Content.Answer != "" {
		return p.Content.Answer, p.Content.Sources
	}
	return "", nil
}

// Send runs one exchange. It returns ErrEmptyMessage or ErrBusy when the
// send is refused, without touching the message list. Otherwise it blocks
// for the round trip and returns the resolved bot message; a failed round
// trip is reported through the message status, not as an error.
func (c *Controller) Send(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}

	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return Message{}, ErrBusy
	}
	c.sending = true
	now := c.now()
	c.messages = append(c.messages, Message{
		ID:        c.newID(),
		Sender:    SenderUser,
		Text:      text,
		Status:    StatusResolved,
		CreatedAt: now,
	})
	pendingID := c.newID()
	c.messages = append(c.messages, Message{
		ID:        pendingID,
		Sender:    SenderBot,
		Status:    StatusPending,
		CreatedAt: now,
	})
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	c.logger.Debug().Str("message_id", pendingID).Msg("sending question")
	answer, sources, err := c.ask(ctx, text)

	c.mu.Lock()
	final, ok := c.resolveLocked(pendingID, answer, sources, err)
	c.sending = false
	snap = c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	if !ok {
		return Message{}, errors.Errorf("conversation: pending message %s disappeared", pendingID)
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("message_id", pendingID).Msg("question failed")
	} else {
		c.logger.Debug().Str("message_id", pendingID).Int("answer_len", len(final.Text)).Msg("question answered")
	}
	return final, nil
}

func (c *Controller) ask(ctx context.Context, question string) (string, []string, error) {
	resp, err := c.requester.Request(ctx, http.MethodPost, c.path, askRequest{Question: question})
	if err != nil {
		return "", nil, err
	}
	var payload answerPayload
	if err := resp.Decode(&payload); err != nil {
		return "", nil, err
	}
	answer, sources := payload.answer()
	if answer == "" {
		answer = NoAnswerText
	}
	return answer, sources, nil
}

func (c *Controller) resolveLocked(id, answer string, sources []string, err error) (Message, bool) {
	for i := range c.messages {
		if c.messages[i].ID != id {
			continue
		}
		m := &c.messages[i]
		if err != nil {
			m.Status = StatusError
			m.Text = ErrorText
			m.Err = err
		} else {
			m.Status = StatusResolved
			m.Text = answer
			m.Sources = sources
		}
		return m.clone(), true
	}
	return Message{}, false
}

func (c *Controller) snapshotLocked() []Message {
	ret := make([]Message, len(c.messages))
	for i, m := range c.messages {
		ret[i] = m.clone()
	}
	return ret
}

func (c *Controller) notify(snap []Message) {
	for _, o := range c.observers {
		o(snap)
	}
}
