package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragnotebook/internal/chat"
	"ragnotebook/internal/documents"
	"ragnotebook/internal/domain"
	"ragnotebook/internal/probe"
	"ragnotebook/internal/settings"
)

type fakeBackend struct {
	mu        sync.Mutex
	answer    domain.AskResponse
	askErr    error
	uploadRes domain.UploadResult
	listDocs  []domain.Document
	deleted   []string
	uploaded  []string
}

func (f *fakeBackend) Upload(ctx context.Context, req domain.UploadRequest) (domain.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded = append(f.uploaded, req.FileName)
	return f.uploadRes, nil
}

func (f *fakeBackend) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Document(nil), f.listDocs...), nil
}

func (f *fakeBackend) DeleteDocument(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBackend) Ask(ctx context.Context, req domain.AskRequest) (domain.AskResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.answer, f.askErr
}

type fakeChecker struct {
	mu   sync.Mutex
	urls []string
}

func (f *fakeChecker) Check(ctx context.Context, ep probe.Endpoint) probe.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, ep.URL)
	return probe.Result{OK: true}
}

type harness struct {
	backend  *fakeBackend
	checker  *fakeChecker
	settings *settings.Store
	docs     *documents.Registry
	chat     *chat.Session
}

func newHarness(cfg domain.Configuration) *harness {
	h := &harness{backend: &fakeBackend{}, checker: &fakeChecker{}}
	h.settings = settings.New(cfg, "http://api", h.checker, nil)
	h.docs = documents.New(h.settings, h.backend)
	h.chat = chat.New(h.settings, h.backend, chat.WithExamples([]string{"first example", "second example"}))
	return h
}

func (h *harness) model() Model {
	m := New(context.Background(), h.settings, h.docs, h.chat)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

var configured = domain.Configuration{
	LLMEndpoint:     "http://llm/v1",
	VectorStoreHost: "milvus:19530",
	EmbeddingModel:  "bge-small",
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func press(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

// settle executes cmd and feeds results of remote work back into the model
// until nothing is left. Timer and blink messages are dropped.
func settle(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case submitDoneMsg, uploadDoneMsg, removeDoneMsg, refreshDoneMsg, probeDoneMsg:
			var next tea.Cmd
			m, next = press(t, m, msg)
			queue = append(queue, next)
		}
	}
	return m
}

func TestChat_SubmitRendersAnswer(t *testing.T) {
	h := newHarness(configured)
	h.backend.answer = domain.AskResponse{Answer: "Revenue grew twelve percent.", Sources: []string{"report.pdf"}}
	m := h.model()

	m, _ = press(t, m, runes("How did revenue change?"))
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, m.input.Value())
	m = settle(t, m, cmd)

	msgs := h.chat.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "How did revenue change?", msgs[0].Content)

	view := m.View()
	assert.Contains(t, view, "Revenue grew twelve percent.")
	assert.Contains(t, view, "Sources: report.pdf")
	assert.Contains(t, m.status, "1 source")
	assert.False(t, m.statusErr)
}

func TestChat_FailureShowsFallback(t *testing.T) {
	h := newHarness(configured)
	h.backend.askErr = &domain.NetworkError{Op: "ask question", Err: errors.New("connection refused")}
	m := h.model()

	m, _ = press(t, m, runes("anything"))
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = settle(t, m, cmd)

	assert.True(t, m.statusErr)
	assert.Contains(t, m.status, "backend unreachable")
	assert.Contains(t, m.View(), "couldn't answer")
}

func TestChat_NotConfiguredKeepsInput(t *testing.T) {
	h := newHarness(domain.Configuration{LLMEndpoint: "http://llm/v1"})
	m := h.model()

	m, _ = press(t, m, runes("hello"))
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Nil(t, cmd)
	assert.Equal(t, "hello", m.input.Value())
	assert.True(t, m.statusErr)
	assert.Contains(t, m.status, "Settings")
	assert.Empty(t, h.chat.Messages())
}

func TestChat_BlankInputShowsError(t *testing.T) {
	h := newHarness(configured)
	m := h.model()

	m, _ = press(t, m, runes("   "))
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Nil(t, cmd)
	assert.True(t, m.statusErr)
	assert.Equal(t, "Type a question first.", m.status)
	assert.Empty(t, h.chat.Messages())
}

func TestChat_QuickFillCyclesExamples(t *testing.T) {
	m := newHarness(configured).model()

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlE})
	assert.Equal(t, "first example", m.input.Value())
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlE})
	assert.Equal(t, "second example", m.input.Value())
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlE})
	assert.Equal(t, "first example", m.input.Value())
}

func TestTabs_Cycle(t *testing.T) {
	m := newHarness(configured).model()

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, tabDocuments, m.tab)
	assert.False(t, m.input.Focused())
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, tabSettings, m.tab)
	assert.True(t, m.fields[fieldLLM].Focused())
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, tabChat, m.tab)
	assert.True(t, m.input.Focused())
}

func TestDocuments_AddFileUploads(t *testing.T) {
	h := newHarness(configured)
	h.backend.uploadRes = domain.UploadResult{DocumentID: "d1", ChunksCount: 12}
	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("quarterly numbers"), 0o644))

	m := h.model()
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m, _ = press(t, m, runes("a"))
	require.Equal(t, docPickFile, m.docMode)
	m, _ = press(t, m, runes(path))
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = settle(t, m, cmd)

	assert.Equal(t, docBrowse, m.docMode)
	assert.Equal(t, []string{"report.pdf"}, h.backend.uploaded)
	docs := h.docs.Documents()
	require.Len(t, docs, 1)
	assert.Equal(t, "d1", docs[0].ID)
	assert.Equal(t, domain.PhaseIndexed, h.docs.State().Phase)
	assert.Contains(t, m.status, "Indexed report.pdf (12 chunks)")
	assert.Contains(t, m.View(), "report.pdf")
}

func TestDocuments_MissingFileIsRejected(t *testing.T) {
	h := newHarness(configured)
	m := h.model()
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m, _ = press(t, m, runes("a"))
	m, _ = press(t, m, runes(filepath.Join(t.TempDir(), "missing.txt")))
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Nil(t, cmd)
	assert.True(t, m.statusErr)
	assert.Equal(t, docPickFile, m.docMode)
	assert.Empty(t, h.backend.uploaded)
}

func TestDocuments_FilterAndDelete(t *testing.T) {
	h := newHarness(configured)
	h.backend.listDocs = []domain.Document{
		{ID: "a", Name: "Annual-Report.pdf"},
		{ID: "b", Name: "notes.txt"},
		{ID: "c", Name: "repo-readme.md"},
	}
	m := h.model()
	m = settle(t, m, m.Init())
	require.Len(t, h.docs.Documents(), 3)

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m, _ = press(t, m, runes("/"))
	m, _ = press(t, m, runes("repo"))
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, docBrowse, m.docMode)

	view := m.View()
	assert.Contains(t, view, "Annual-Report.pdf")
	assert.Contains(t, view, "repo-readme.md")
	assert.NotContains(t, view, "notes.txt")

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, cmd := press(t, m, runes("d"))
	m = settle(t, m, cmd)

	assert.Equal(t, []string{"c"}, h.backend.deleted)
	assert.Len(t, h.docs.Documents(), 2)
	assert.Equal(t, 0, m.cursor)
	assert.Contains(t, m.status, "Deleted repo-readme.md")
}

func TestSettings_SaveAndTest(t *testing.T) {
	h := newHarness(domain.Configuration{})
	m := h.model()
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	require.Equal(t, tabSettings, m.tab)

	m, _ = press(t, m, runes("http://llm:8000/v1/"))
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = press(t, m, runes("milvus:19530"))
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	cfg := h.settings.Get()
	assert.Equal(t, "http://llm:8000/v1/", cfg.LLMEndpoint)
	assert.Equal(t, "milvus:19530", cfg.VectorStoreHost)

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlT})
	m = settle(t, m, cmd)
	assert.Equal(t, domain.StatusSuccess, h.settings.Status(domain.TargetLLM))
	assert.Contains(t, m.status, "LLM endpoint is reachable")

	m, cmd = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlV})
	m = settle(t, m, cmd)
	assert.Equal(t, domain.StatusSuccess, h.settings.Status(domain.TargetVectorStore))
	assert.Equal(t, []string{"http://llm:8000/v1/models", "http://api/api/test-milvus"}, h.checker.urls)
	assert.Contains(t, m.View(), "[success]")
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{domain.ErrNotConfigured, "Settings"},
		{domain.ErrEmptyInput, "Type a question"},
		{domain.ErrBusy, "Wait"},
		{domain.ErrUploadInProgress, "still running"},
		{&domain.ServerError{Op: "upload", StatusCode: 500, Detail: "Milvus down"}, "backend returned 500: Milvus down"},
		{&domain.ServerError{Op: "upload", StatusCode: 404}, "backend returned 404"},
		{&domain.NetworkError{Op: "ask", Err: errors.New("timeout")}, "backend unreachable"},
		{errors.New("plain"), "plain"},
	}
	for _, tt := range tests {
		assert.Contains(t, describeError(tt.err), tt.want)
	}
}

func TestHighlightAnswer(t *testing.T) {
	upper := lipgloss.NewStyle().Transform(strings.ToUpper)

	got := highlightAnswer("The sky is blue. Revenue grew in March. Costs fell.", "How did revenue change in March?", upper)
	assert.Equal(t, "The sky is blue. REVENUE GREW IN MARCH. Costs fell.", got)

	unchanged := "Nothing relevant here"
	assert.Equal(t, unchanged, highlightAnswer(unchanged, "revenue", upper))
	assert.Equal(t, "", highlightAnswer("", "revenue", upper))
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "["+strings.Repeat(" ", progressBarWidth)+"]   0%", progressBar(-5))
	assert.Equal(t, "["+strings.Repeat("=", progressBarWidth)+"] 100%", progressBar(140))
	assert.Contains(t, progressBar(50), strings.Repeat("=", progressBarWidth/2)+" ")
}
