package ui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/ravent/pkg/conversation"
	"github.com/go-go-golems/ravent/pkg/files"
	"github.com/go-go-golems/ravent/pkg/gateway"
)

type fakeSender struct {
	mu    sync.Mutex
	texts []string
	reply conversation.Message
	err   error
}

func (f *fakeSender) Send(_ context.Context, text string) (conversation.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return f.reply, f.err
}

func newChat(t *testing.T, s ChatSender, opts ...ChatOption) ChatModel {
	t.Helper()
	opts = append([]ChatOption{WithRenderer(PlainRenderer{})}, opts...)
	m := NewChatModel(context.Background(), s, conversation.ModeNaive, NewMessageFeed(), opts...)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(ChatModel)
}

func typeText(m ChatModel, text string) ChatModel {
	m.input.SetValue(text)
	return m
}

func pressEnter(t *testing.T, m ChatModel) (ChatModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(ChatModel), cmd
}

func TestChat_SubmitSendsAndClearsInput(t *testing.T) {
	s := &fakeSender{reply: conversation.Message{Sender: conversation.SenderBot, Status: conversation.StatusResolved, Text: "hi"}}
	m := typeText(newChat(t, s), "  hello  ")

	m, cmd := pressEnter(t, m)
	require.NotNil(t, cmd)
	require.True(t, m.sending)
	require.Equal(t, "", m.input.Value())

	done := cmd()
	require.Equal(t, []string{"hello"}, s.texts)

	next, _ := m.Update(done)
	m = next.(ChatModel)
	require.False(t, m.sending)
	require.False(t, m.SessionExpired())
}

func TestChat_IgnoresBlankInput(t *testing.T) {
	s := &fakeSender{}
	m := typeText(newChat(t, s), "   ")
	m, cmd := pressEnter(t, m)
	require.Nil(t, cmd)
	require.False(t, m.sending)
	require.Empty(t, s.texts)
}

func TestChat_RefusesWhileSending(t *testing.T) {
	s := &fakeSender{}
	m := typeText(newChat(t, s), "one")
	m, cmd := pressEnter(t, m)
	require.NotNil(t, cmd)

	m = typeText(m, "two")
	m, cmd = pressEnter(t, m)
	require.Nil(t, cmd)
	require.Equal(t, "two", m.input.Value())
	require.Contains(t, m.View(), "Please wait for the current answer.")
}

func TestChat_SessionExpiredQuits(t *testing.T) {
	sessErr := &gateway.SessionInvalidError{Status: &gateway.StatusError{StatusCode: 401}}
	s := &fakeSender{reply: conversation.Message{Sender: conversation.SenderBot, Status: conversation.StatusError, Text: conversation.ErrorText, Err: sessErr}}
	m := typeText(newChat(t, s), "hello")
	m, cmd := pressEnter(t, m)

	next, quit := m.Update(cmd())
	m = next.(ChatModel)
	require.True(t, m.SessionExpired())
	require.NotNil(t, quit)
	require.Equal(t, tea.Quit(), quit())
}

func TestChat_PlainErrorStaysInChat(t *testing.T) {
	s := &fakeSender{reply: conversation.Message{Sender: conversation.SenderBot, Status: conversation.StatusError, Text: conversation.ErrorText, Err: errors.New("boom")}}
	m := typeText(newChat(t, s), "hello")
	m, cmd := pressEnter(t, m)
	next, _ := m.Update(cmd())
	require.False(t, next.(ChatModel).SessionExpired())
}

func TestChat_MessagesUpdateScrollsToBottom(t *testing.T) {
	m := newChat(t, &fakeSender{})
	var msgs []conversation.Message
	for i := 0; i < 40; i++ {
		msgs = append(msgs, conversation.Message{ID: "u", Sender: conversation.SenderUser, Text: "line"})
	}
	msgs = append(msgs, conversation.Message{ID: "b", Sender: conversation.SenderBot, Status: conversation.StatusPending})

	next, cmd := m.Update(messagesUpdatedMsg{messages: msgs})
	m = next.(ChatModel)
	require.NotNil(t, cmd)
	require.Len(t, m.Messages(), 41)
	require.True(t, m.viewport.AtBottom())
	require.Contains(t, m.viewport.View(), PlaceholderText)
}

func TestChat_CopyLastAnswer(t *testing.T) {
	var copied string
	m := newChat(t, &fakeSender{}, WithClipboard(func(s string) error {
		copied = s
		return nil
	}))
	next, _ := m.Update(messagesUpdatedMsg{messages: []conversation.Message{
		{Sender: conversation.SenderUser, Text: "q1"},
		{Sender: conversation.SenderBot, Status: conversation.StatusResolved, Text: "a1"},
		{Sender: conversation.SenderUser, Text: "q2"},
		{Sender: conversation.SenderBot, Status: conversation.StatusError, Text: conversation.ErrorText},
	}})
	m = next.(ChatModel)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlY})
	m = next.(ChatModel)
	require.Equal(t, "a1", copied)
	require.Contains(t, m.View(), "Copied last answer to clipboard.")
}

func TestMessageFeed_KeepsLatest(t *testing.T) {
	f := NewMessageFeed()
	f.Observe([]conversation.Message{{ID: "1"}})
	f.Observe([]conversation.Message{{ID: "1"}, {ID: "2"}})

	msg := waitForMessages(f)()
	got, ok := msg.(messagesUpdatedMsg)
	require.True(t, ok)
	require.Len(t, got.messages, 2)

	done := make(chan struct{})
	go func() {
		_ = waitForMessages(f)()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("feed delivered without a new snapshot")
	case <-time.After(50 * time.Millisecond):
	}
	f.Observe(nil)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not deliver")
	}
}

func TestRenderTranscript(t *testing.T) {
	require.Contains(t, RenderTranscript(nil, 80, nil), emptyHint)

	out := RenderTranscript([]conversation.Message{
		{Sender: conversation.SenderUser, Text: "hello"},
		{Sender: conversation.SenderBot, Status: conversation.StatusResolved, Text: "hi", Sources: []string{"a.pdf", "b.txt"}},
		{Sender: conversation.SenderUser, Text: "again"},
		{Sender: conversation.SenderBot, Status: conversation.StatusPending},
	}, 80, PlainRenderer{})

	require.Contains(t, out, "hello")
	require.Contains(t, out, "hi")
	require.Contains(t, out, "Sources: a.pdf, b.txt")
	require.Contains(t, out, PlaceholderText)
	require.Less(t, strings.Index(out, "hello"), strings.Index(out, "again"))
}

type fakeFiles struct {
	records []files.FileRecord
	listErr error
	deleted []int
	upload  string
}

func (f *fakeFiles) List(context.Context) ([]files.FileRecord, error) { return f.records, f.listErr }

func (f *fakeFiles) Upload(_ context.Context, path string) (files.FileRecord, error) {
	f.upload = path
	if !files.Supported(path) {
		return files.FileRecord{}, files.ErrUnsupportedType
	}
	return files.FileRecord{ID: 9, File: "/media/" + path}, nil
}

func (f *fakeFiles) Delete(_ context.Context, id int) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func loadFiles(t *testing.T, svc *fakeFiles) FilesModel {
	t.Helper()
	m := NewFilesModel(context.Background(), svc)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	m = next.(FilesModel)
	next, _ = m.Update(m.Init()())
	return next.(FilesModel)
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestFiles_LoadAndDelete(t *testing.T) {
	svc := &fakeFiles{records: []files.FileRecord{
		{ID: 1, File: "/media/uploads/a.pdf"},
		{ID: 2, File: "/media/uploads/b.txt"},
	}}
	m := loadFiles(t, svc)
	require.Len(t, m.Records(), 2)

	next, _ := m.Update(key("d"))
	m = next.(FilesModel)
	require.Contains(t, m.View(), "Delete a.pdf? (y/n)")

	next, cmd := m.Update(key("y"))
	m = next.(FilesModel)
	require.NotNil(t, cmd)
	next, _ = m.Update(cmd())
	m = next.(FilesModel)
	require.Equal(t, []int{1}, svc.deleted)
	require.Contains(t, m.View(), "Deleted file #1.")
}

func TestFiles_CancelDelete(t *testing.T) {
	svc := &fakeFiles{records: []files.FileRecord{{ID: 1, File: "a.pdf"}}}
	m := loadFiles(t, svc)
	next, _ := m.Update(key("d"))
	next, cmd := next.(FilesModel).Update(key("n"))
	require.Nil(t, cmd)
	require.Empty(t, svc.deleted)
	require.Equal(t, filesBrowse, next.(FilesModel).mode)
}

func TestFiles_UploadUnsupported(t *testing.T) {
	svc := &fakeFiles{}
	m := loadFiles(t, svc)
	next, _ := m.Update(key("u"))
	m = next.(FilesModel)
	m.path.SetValue("picture.png")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(FilesModel)
	require.NotNil(t, cmd)
	next, _ = m.Update(cmd())
	m = next.(FilesModel)
	require.Equal(t, "picture.png", svc.upload)
	require.Contains(t, m.View(), files.UploadFailedMessage)
}

func TestFiles_SessionExpiredQuits(t *testing.T) {
	svc := &fakeFiles{listErr: &gateway.SessionInvalidError{Status: &gateway.StatusError{StatusCode: 401}}}
	m := NewFilesModel(context.Background(), svc)
	next, cmd := m.Update(m.Init()())
	require.True(t, next.(FilesModel).SessionExpired())
	require.NotNil(t, cmd)
}

func TestFiles_NetworkErrorShown(t *testing.T) {
	svc := &fakeFiles{listErr: &gateway.NetworkError{Method: "GET", URL: "x", Err: errors.New("refused")}}
	m := loadFiles(t, svc)
	require.False(t, m.SessionExpired())
	require.Contains(t, m.View(), gateway.NetworkErrorMessage)
}

func TestForms_Validation(t *testing.T) {
	require.Error(t, required("username")("  "))
	require.NoError(t, required("username")("bob"))
	require.NoError(t, optionalEmail(""))
	require.NoError(t, optionalEmail("bob@example.com"))
	require.Error(t, optionalEmail("not-an-email"))

	c := &Credentials{}
	require.NotNil(t, NewLoginForm(c))
	require.NotNil(t, NewRegisterForm(c))
}
