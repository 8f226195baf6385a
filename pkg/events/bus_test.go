package events

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/ravent/pkg/conversation"
)

func receive(t *testing.T, ch <-chan Update) Update {
	t.Helper()
	select {
	case u, ok := <-ch:
		require.True(t, ok, "update channel closed")
		return u
	case <-time.After(5 * time.Second):
		t.Fatal("no update received")
		return Update{}
	}
}

func TestBus_InProcessRoundTrip(t *testing.T) {
	bus, err := NewBus(Settings{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })
	require.Equal(t, DefaultTopic, bus.Topic())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	observe := bus.Observer("conv-1", conversation.ModeLight)
	observe([]conversation.Message{
		{ID: "u1", Sender: conversation.SenderUser, Text: "hello", Status: conversation.StatusResolved},
		{ID: "b1", Sender: conversation.SenderBot, Status: conversation.StatusPending},
	})

	u := receive(t, updates)
	require.Equal(t, "conv-1", u.ConversationID)
	require.Equal(t, conversation.ModeLight, u.Mode)
	require.Len(t, u.Messages, 2)
	last, ok := u.Latest()
	require.True(t, ok)
	require.Equal(t, "b1", last.ID)
	require.True(t, last.IsPending())
}

func TestBus_MirrorsControllerMutations(t *testing.T) {
	bus, err := NewBus(Settings{Topic: "test.topic"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	c, err := conversation.NewController(stubRequester{}, conversation.ModeNaive,
		conversation.WithObserver(bus.Observer("c", conversation.ModeNaive)))
	require.NoError(t, err)

	_, err = c.Send(context.Background(), "hello")
	require.NoError(t, err)

	// in-process delivery does not guarantee order between publishes
	byStatus := map[conversation.Status]conversation.Message{}
	for i := 0; i < 2; i++ {
		u := receive(t, updates)
		require.Len(t, u.Messages, 2)
		byStatus[u.Messages[1].Status] = u.Messages[1]
	}
	require.Contains(t, byStatus, conversation.StatusPending)
	require.Equal(t, "hi", byStatus[conversation.StatusResolved].Text)
	require.Equal(t, byStatus[conversation.StatusPending].ID, byStatus[conversation.StatusResolved].ID)
}

func TestBus_RedisRequiresAddr(t *testing.T) {
	_, err := NewBus(Settings{Redis: true})
	require.Error(t, err)
}

func TestWatermillLogger_With(t *testing.T) {
	var l watermill.LoggerAdapter = NewWatermillLogger(zerolog.Nop())
	l = l.With(watermill.LogFields{"topic": "x"})
	l.Info("ok", nil)
	l.Error("bad", nil, watermill.LogFields{"n": 1})
	l.Debug("d", nil)
	l.Trace("t", nil)
}
