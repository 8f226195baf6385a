package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"

	"github.com/go-go-golems/ravent/pkg/files"
	"github.com/go-go-golems/ravent/pkg/gateway"
)

type FileService interface {
	List(ctx context.Context) ([]files.FileRecord, error)
	Upload(ctx context.Context, path string) (files.FileRecord, error)
	Delete(ctx context.Context, id int) error
}

type fileItem struct {
	rec files.FileRecord
}

func (i fileItem) Title() string { return i.rec.Name() }

func (i fileItem) Description() string {
	if i.rec.UploadedAt.IsZero() {
		return fmt.Sprintf("#%d", i.rec.ID)
	}
	return fmt.Sprintf("#%d • uploaded %s", i.rec.ID, i.rec.UploadedAt.Local().Format("2006-01-02 15:04"))
}

func (i fileItem) FilterValue() string { return i.rec.Name() }

type filesMode int

const (
	filesBrowse filesMode = iota
	filesConfirmDelete
	filesUploadPrompt
)

type filesLoadedMsg struct {
	records []files.FileRecord
	err     error
}

type fileUploadedMsg struct {
	record files.FileRecord
	err    error
}

type fileDeletedMsg struct {
	id  int
	err error
}

const filesHelp = "u upload • d delete • r refresh • / filter • q quit"

// FilesModel lists uploaded documents and lets the user upload or delete them.
type FilesModel struct {
	ctx     context.Context
	service FileService

	list    list.Model
	path    textinput.Model
	mode    filesMode
	status  string
	loading bool

	sessionExpired bool
}

func NewFilesModel(ctx context.Context, service FileService) FilesModel {
	delegate := list.NewDefaultDelegate()
	l := list.New(nil, delegate, 0, 0)
	l.Title = "Uploaded files"
	l.SetShowHelp(false)
	l.SetStatusBarItemName("file", "files")

	ti := textinput.New()
	ti.Placeholder = "path/to/document.pdf"
	ti.Prompt = "Upload: "
	ti.CharLimit = 1024

	return FilesModel{
		ctx:     ctx,
		service: service,
		list:    l,
		path:    ti,
		loading: true,
	}
}

func (m FilesModel) SessionExpired() bool { return m.sessionExpired }

func (m FilesModel) Records() []files.FileRecord {
	items := m.list.Items()
	ret := make([]files.FileRecord, 0, len(items))
	for _, it := range items {
		if fi, ok := it.(fileItem); ok {
			ret = append(ret, fi.rec)
		}
	}
	return ret
}

func (m FilesModel) Init() tea.Cmd {
	return m.load()
}

func (m FilesModel) load() tea.Cmd {
	ctx, svc := m.ctx, m.service
	return func() tea.Msg {
		recs, err := svc.List(ctx)
		return filesLoadedMsg{records: recs, err: err}
	}
}

func (m FilesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-4)
		m.path.Width = msg.Width - 12
		return m, nil

	case filesLoadedMsg:
		m.loading = false
		if msg.err != nil {
			return m.fail(msg.err, files.ListFailedMessage)
		}
		items := make([]list.Item, len(msg.records))
		for i, rec := range msg.records {
			items[i] = fileItem{rec: rec}
		}
		cmd := m.list.SetItems(items)
		if len(items) == 0 {
			m.status = "No files uploaded yet."
		}
		return m, cmd

	case fileUploadedMsg:
		if msg.err != nil {
			if errors.Is(msg.err, files.ErrUnsupportedType) {
				m.status = files.UploadFailedMessage
				return m, nil
			}
			return m.fail(msg.err, files.UploadFailedMessage)
		}
		m.status = fmt.Sprintf("Uploaded %s.", msg.record.Name())
		return m, m.load()

	case fileDeletedMsg:
		if msg.err != nil {
			return m.fail(msg.err, files.DeleteFailedMessage)
		}
		m.status = fmt.Sprintf("Deleted file #%d.", msg.id)
		return m, m.load()

	case tea.KeyMsg:
		switch m.mode {
		case filesConfirmDelete:
			return m.updateConfirm(msg)
		case filesUploadPrompt:
			return m.updateUpload(msg)
		}
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.list.FilterState() != list.Filtering {
			switch msg.String() {
			case "q", "esc":
				return m, tea.Quit
			case "r":
				m.status = ""
				m.loading = true
				return m, m.load()
			case "d":
				if _, ok := m.list.SelectedItem().(fileItem); ok {
					m.mode = filesConfirmDelete
				}
				return m, nil
			case "u":
				m.mode = filesUploadPrompt
				m.path.Reset()
				return m, m.path.Focus()
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m FilesModel) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch strings.ToLower(msg.String()) {
	case "y":
		m.mode = filesBrowse
		item, ok := m.list.SelectedItem().(fileItem)
		if !ok {
			return m, nil
		}
		ctx, svc, id := m.ctx, m.service, item.rec.ID
		return m, func() tea.Msg {
			return fileDeletedMsg{id: id, err: svc.Delete(ctx, id)}
		}
	case "n", "esc", "q":
		m.mode = filesBrowse
	}
	return m, nil
}

func (m FilesModel) updateUpload(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = filesBrowse
		m.path.Blur()
		return m, nil
	case "enter":
		p := strings.TrimSpace(m.path.Value())
		m.mode = filesBrowse
		m.path.Blur()
		if p == "" {
			return m, nil
		}
		if expanded, err := homedir.Expand(p); err == nil {
			p = expanded
		}
		m.status = "Uploading..."
		ctx, svc := m.ctx, m.service
		return m, func() tea.Msg {
			rec, err := svc.Upload(ctx, p)
			return fileUploadedMsg{record: rec, err: err}
		}
	}
	var cmd tea.Cmd
	m.path, cmd = m.path.Update(msg)
	return m, cmd
}

func (m FilesModel) fail(err error, fallback string) (tea.Model, tea.Cmd) {
	if errors.Is(err, gateway.ErrSessionInvalid) {
		m.sessionExpired = true
		return m, tea.Quit
	}
	m.status = gateway.UserMessage(err, fallback)
	return m, nil
}

func (m FilesModel) View() string {
	var footer string
	switch m.mode {
	case filesConfirmDelete:
		if item, ok := m.list.SelectedItem().(fileItem); ok {
			footer = noticeStyle.Render(fmt.Sprintf("Delete %s? (y/n)", item.rec.Name()))
		}
	case filesUploadPrompt:
		footer = m.path.View()
	default:
		switch {
		case m.loading:
			footer = pendingStyle.Render("Loading...")
		case m.status != "":
			footer = noticeStyle.Render(m.status)
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.list.View(),
		footer,
		helpStyle.Render(filesHelp),
	)
}
