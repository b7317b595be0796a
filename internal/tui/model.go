package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"ragnotebook/internal/domain"
)

type tab int

const (
	tabChat tab = iota
	tabDocuments
	tabSettings
	tabCount
)

var tabNames = [tabCount]string{"Chat", "Documents", "Settings"}

type docMode int

const (
	docBrowse docMode = iota
	docFilter
	docPickFile
)

const (
	fieldLLM = iota
	fieldVectorStore
	fieldEmbedding
	fieldCount
)

var fieldLabels = [fieldCount]string{"LLM endpoint", "Vector store host", "Embedding model"}

// Model is the Bubble Tea model for the notebook. All remote work runs in
// commands; the model only reads component state when rendering.
type Model struct {
	ctx      context.Context
	settings SettingsPort
	docs     DocumentsPort
	chat     ChatPort

	tab       tab
	width     int
	height    int
	ready     bool
	status    string
	statusErr bool

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	example  int

	docMode   docMode
	filter    textinput.Model
	pathInput textinput.Model
	cursor    int

	fields [fieldCount]textinput.Model
	focus  int
}

// New creates the TUI model. ctx bounds every command the model issues.
func New(ctx context.Context, settings SettingsPort, docs DocumentsPort, chat ChatPort) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your documents and press Enter (ctrl+e for examples)"
	ti.CharLimit = 0
	ti.Focus()

	filter := textinput.New()
	filter.Prompt = "/ "
	filter.Placeholder = "filter by name"
	filter.CharLimit = 0

	path := textinput.New()
	path.Prompt = "file: "
	path.Placeholder = "path to a document"
	path.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:       ctx,
		settings:  settings,
		docs:      docs,
		chat:      chat,
		input:     ti,
		viewport:  viewport.New(0, 0),
		spinner:   sp,
		filter:    filter,
		pathInput: path,
		status:    "Ready. tab switches views, ctrl+c quits.",
	}

	cfg := settings.Get()
	values := [fieldCount]string{cfg.LLMEndpoint, cfg.VectorStoreHost, cfg.EmbeddingModel}
	for i := range m.fields {
		f := textinput.New()
		f.Prompt = ""
		f.CharLimit = 0
		f.SetValue(values[i])
		m.fields[i] = f
	}
	m.refreshTranscript()
	return m
}

// Init loads the document list and starts the cursor blink.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, refreshCmd(m.ctx, m.docs))
}

// Update handles key, window and command result events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "tab":
			return m.switchTab((m.tab + 1) % tabCount), nil
		case "shift+tab":
			return m.switchTab((m.tab + tabCount - 1) % tabCount), nil
		}
		switch m.tab {
		case tabDocuments:
			return m.updateDocuments(msg)
		case tabSettings:
			return m.updateSettings(msg)
		default:
			return m.updateChat(msg)
		}

	case spinner.TickMsg:
		if !m.chat.Pending() {
			return m, nil
		}
		m.refreshTranscript()
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case submitDoneMsg:
		switch {
		case msg.err == nil:
			m.setStatus(fmt.Sprintf("Answered from %d source(s).", len(msg.msg.Sources)))
		case msg.msg.ID != "":
			m.setError("Query failed: " + describeError(msg.err))
		default:
			m.setError(describeError(msg.err))
		}
		m.refreshTranscript()
		return m, nil

	case progressTickMsg:
		if m.docs.State().Phase == domain.PhaseUploading {
			return m, progressTick()
		}
		return m, nil

	case uploadDoneMsg:
		if msg.err != nil {
			m.setError("Upload failed: " + describeError(msg.err))
		} else {
			m.setStatus(fmt.Sprintf("Indexed %s (%d chunks).", msg.doc.Name, msg.doc.ChunkCount))
		}
		m.clampCursor()
		return m, nil

	case removeDoneMsg:
		if msg.err != nil {
			m.setError("Delete failed: " + describeError(msg.err))
		} else {
			m.setStatus("Deleted " + msg.name + ".")
		}
		m.clampCursor()
		return m, nil

	case refreshDoneMsg:
		if msg.err != nil {
			m.setError("Could not load documents: " + describeError(msg.err))
		} else {
			m.setStatus("Document list updated.")
		}
		m.clampCursor()
		return m, nil

	case probeDoneMsg:
		name := fieldLabels[fieldLLM]
		if msg.target == domain.TargetVectorStore {
			name = fieldLabels[fieldVectorStore]
		}
		if msg.err != nil {
			m.setError(name + " test failed: " + describeError(msg.err))
		} else {
			m.setStatus(name + " is reachable.")
		}
		return m, nil
	}

	return m.forwardToFocused(msg)
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		q := strings.TrimSpace(m.input.Value())
		if q == "" {
			m.setError(describeError(domain.ErrEmptyInput))
			return m, nil
		}
		if m.chat.Pending() {
			m.setError(describeError(domain.ErrBusy))
			return m, nil
		}
		cfg := m.settings.Get()
		if strings.TrimSpace(cfg.LLMEndpoint) == "" || strings.TrimSpace(cfg.VectorStoreHost) == "" {
			m.setError(describeError(domain.ErrNotConfigured))
			return m, nil
		}
		m.input.SetValue("")
		m.setStatus("Thinking...")
		return m, tea.Batch(submitCmd(m.ctx, m.chat, q), m.spinner.Tick)
	case "ctrl+e":
		examples := m.chat.Examples()
		if len(examples) == 0 {
			return m, nil
		}
		text, err := m.chat.QuickFill(m.example % len(examples))
		if err != nil {
			m.setError(describeError(err))
			return m, nil
		}
		m.example = (m.example + 1) % len(examples)
		m.input.SetValue(text)
		m.input.CursorEnd()
		return m, nil
	case "up", "down", "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateDocuments(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.docMode {
	case docFilter:
		switch msg.String() {
		case "enter":
			m.setDocMode(docBrowse)
			return m, nil
		case "esc":
			m.filter.SetValue("")
			m.setDocMode(docBrowse)
			m.clampCursor()
			return m, nil
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.clampCursor()
		return m, cmd

	case docPickFile:
		switch msg.String() {
		case "esc":
			m.pathInput.SetValue("")
			m.setDocMode(docBrowse)
			return m, nil
		case "enter":
			path := strings.TrimSpace(m.pathInput.Value())
			if path == "" {
				return m, nil
			}
			f, err := domain.FileFromPath(path)
			if err != nil {
				m.setError("Cannot use file: " + err.Error())
				return m, nil
			}
			m.docs.SelectFile(f)
			m.pathInput.SetValue("")
			m.setDocMode(docBrowse)
			return m.startUpload()
		}
		var cmd tea.Cmd
		m.pathInput, cmd = m.pathInput.Update(msg)
		return m, cmd
	}

	visible := m.docs.Filter(m.filter.Value())
	switch msg.String() {
	case "/":
		m.setDocMode(docFilter)
	case "a", "u":
		m.setDocMode(docPickFile)
	case "enter":
		// retry or start the pending selection
		switch m.docs.State().Phase {
		case domain.PhaseSelected, domain.PhaseFailed:
			return m.startUpload()
		}
	case "r":
		m.setStatus("Refreshing documents...")
		return m, refreshCmd(m.ctx, m.docs)
	case "d", "delete":
		if m.cursor < len(visible) {
			doc := visible[m.cursor]
			m.setStatus("Deleting " + doc.Name + "...")
			return m, removeCmd(m.ctx, m.docs, doc)
		}
	case "esc":
		m.filter.SetValue("")
		m.clampCursor()
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(visible)-1 {
			m.cursor++
		}
	}
	return m, nil
}

func (m Model) startUpload() (tea.Model, tea.Cmd) {
	if m.docs.State().Phase == domain.PhaseUploading {
		m.setError(describeError(domain.ErrUploadInProgress))
		return m, nil
	}
	name := m.docs.State().FileName
	m.setStatus("Uploading " + name + "...")
	return m, tea.Batch(uploadCmd(m.ctx, m.docs), progressTick())
}

func (m Model) updateSettings(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up":
		m.focusField((m.focus + fieldCount - 1) % fieldCount)
		return m, nil
	case "down":
		m.focusField((m.focus + 1) % fieldCount)
		return m, nil
	case "enter":
		llm := strings.TrimSpace(m.fields[fieldLLM].Value())
		vs := strings.TrimSpace(m.fields[fieldVectorStore].Value())
		model := strings.TrimSpace(m.fields[fieldEmbedding].Value())
		m.settings.Update(domain.ConfigurationPatch{
			LLMEndpoint:     &llm,
			VectorStoreHost: &vs,
			EmbeddingModel:  &model,
		})
		m.setStatus("Settings saved for this session.")
		return m, nil
	case "ctrl+t":
		m.setStatus("Testing " + fieldLabels[fieldLLM] + "...")
		return m, probeCmd(m.ctx, m.settings, domain.TargetLLM)
	case "ctrl+v":
		m.setStatus("Testing " + fieldLabels[fieldVectorStore] + "...")
		return m, probeCmd(m.ctx, m.settings, domain.TargetVectorStore)
	}
	var cmd tea.Cmd
	m.fields[m.focus], cmd = m.fields[m.focus].Update(msg)
	return m, cmd
}

// forwardToFocused routes non-key messages such as cursor blinks.
func (m Model) forwardToFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.tab {
	case tabChat:
		m.input, cmd = m.input.Update(msg)
	case tabDocuments:
		switch m.docMode {
		case docFilter:
			m.filter, cmd = m.filter.Update(msg)
		case docPickFile:
			m.pathInput, cmd = m.pathInput.Update(msg)
		}
	case tabSettings:
		m.fields[m.focus], cmd = m.fields[m.focus].Update(msg)
	}
	return m, cmd
}

func (m Model) switchTab(t tab) Model {
	m.tab = t
	m.input.Blur()
	m.filter.Blur()
	m.pathInput.Blur()
	for i := range m.fields {
		m.fields[i].Blur()
	}
	switch t {
	case tabChat:
		m.input.Focus()
		m.refreshTranscript()
	case tabDocuments:
		m.setDocMode(m.docMode)
	case tabSettings:
		m.focusField(m.focus)
	}
	return m
}

func (m *Model) setDocMode(mode docMode) {
	m.docMode = mode
	m.filter.Blur()
	m.pathInput.Blur()
	switch mode {
	case docFilter:
		m.filter.Focus()
	case docPickFile:
		m.pathInput.Focus()
	}
}

func (m *Model) focusField(i int) {
	m.fields[m.focus].Blur()
	m.focus = i
	m.fields[m.focus].Focus()
}

func (m *Model) clampCursor() {
	n := len(m.docs.Filter(m.filter.Value()))
	if m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *Model) setError(s string) {
	m.status = s
	m.statusErr = true
}

// describeError turns component errors into operator-facing text.
func describeError(err error) string {
	var se *domain.ServerError
	switch {
	case errors.Is(err, domain.ErrNotConfigured):
		return "Configure the LLM endpoint and vector store host in Settings first."
	case errors.Is(err, domain.ErrEmptyInput):
		return "Type a question first."
	case errors.Is(err, domain.ErrNoFileSelected):
		return "Select a file first (press a)."
	case errors.Is(err, domain.ErrBusy):
		return "Wait for the current answer before asking again."
	case errors.Is(err, domain.ErrUploadInProgress):
		return "Another upload is still running."
	case errors.Is(err, domain.ErrNoSuchExample):
		return "No example question available."
	case errors.As(err, &se):
		if se.Detail != "" {
			return fmt.Sprintf("backend returned %d: %s", se.StatusCode, se.Detail)
		}
		return fmt.Sprintf("backend returned %d", se.StatusCode)
	case domain.IsNetworkError(err):
		return "backend unreachable (" + err.Error() + ")"
	default:
		return err.Error()
	}
}
