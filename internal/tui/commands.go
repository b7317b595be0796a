package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"ragnotebook/internal/domain"
)

// SettingsPort is the TUI-facing subset of the configuration store.
type SettingsPort interface {
	Get() domain.Configuration
	Update(patch domain.ConfigurationPatch)
	Status(target domain.Target) domain.ConnectionStatus
	TestLLM(ctx context.Context) error
	TestVectorStore(ctx context.Context) error
}

// DocumentsPort is the TUI-facing subset of the document registry.
type DocumentsPort interface {
	State() domain.IngestionState
	SelectFile(f *domain.File)
	Upload(ctx context.Context) (domain.Document, error)
	Remove(ctx context.Context, id string) error
	Refresh(ctx context.Context) error
	Filter(term string) []domain.Document
}

// ChatPort is the TUI-facing subset of the chat session.
type ChatPort interface {
	Submit(ctx context.Context, question string) (domain.Message, error)
	Messages() []domain.Message
	Pending() bool
	Examples() []string
	QuickFill(i int) (string, error)
}

type submitDoneMsg struct {
	msg domain.Message
	err error
}

type uploadDoneMsg struct {
	doc domain.Document
	err error
}

type removeDoneMsg struct {
	name string
	err  error
}

type refreshDoneMsg struct{ err error }

type probeDoneMsg struct {
	target domain.Target
	err    error
}

type progressTickMsg struct{}

const progressPollInterval = 100 * time.Millisecond

func submitCmd(ctx context.Context, chat ChatPort, question string) tea.Cmd {
	return func() tea.Msg {
		msg, err := chat.Submit(ctx, question)
		return submitDoneMsg{msg: msg, err: err}
	}
}

func uploadCmd(ctx context.Context, docs DocumentsPort) tea.Cmd {
	return func() tea.Msg {
		doc, err := docs.Upload(ctx)
		return uploadDoneMsg{doc: doc, err: err}
	}
}

func removeCmd(ctx context.Context, docs DocumentsPort, doc domain.Document) tea.Cmd {
	return func() tea.Msg {
		return removeDoneMsg{name: doc.Name, err: docs.Remove(ctx, doc.ID)}
	}
}

func refreshCmd(ctx context.Context, docs DocumentsPort) tea.Cmd {
	return func() tea.Msg {
		return refreshDoneMsg{err: docs.Refresh(ctx)}
	}
}

func probeCmd(ctx context.Context, settings SettingsPort, target domain.Target) tea.Cmd {
	return func() tea.Msg {
		var err error
		switch target {
		case domain.TargetLLM:
			err = settings.TestLLM(ctx)
		case domain.TargetVectorStore:
			err = settings.TestVectorStore(ctx)
		}
		return probeDoneMsg{target: target, err: err}
	}
}

func progressTick() tea.Cmd {
	return tea.Tick(progressPollInterval, func(time.Time) tea.Msg { return progressTickMsg{} })
}
