package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"ragnotebook/internal/domain"
)

var (
	titleStyle       = lipgloss.NewStyle().Bold(true)
	activeTabStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Underline(true)
	inactiveTabStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	boxStyle         = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	assistantStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	sourceStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	highlightStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	selectedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	statusStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	hintStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	connectionStyles = map[domain.ConnectionStatus]lipgloss.Style{
		domain.StatusIdle:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		domain.StatusTesting: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		domain.StatusSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		domain.StatusError:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
)

const progressBarWidth = 30

// View renders the active tab.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var body string
	switch m.tab {
	case tabDocuments:
		body = m.documentsView()
	case tabSettings:
		body = m.settingsView()
	default:
		body = m.chatView()
	}

	status := statusStyle.Render(m.status)
	if m.statusErr {
		status = errorStyle.Render(m.status)
	}
	return m.tabsView() + "\n" + body + "\n" + status
}

func (m Model) tabsView() string {
	parts := make([]string, 0, tabCount+1)
	parts = append(parts, titleStyle.Render("RAG Notebook"))
	for i, name := range tabNames {
		if tab(i) == m.tab {
			parts = append(parts, activeTabStyle.Render(name))
		} else {
			parts = append(parts, inactiveTabStyle.Render(name))
		}
	}
	return strings.Join(parts, "  ")
}

func (m *Model) resize(width, height int) {
	m.ready = true
	m.width, m.height = width, height

	bw, bh := boxStyle.GetFrameSize()
	_, ih := inputBoxStyle.GetFrameSize()
	reserved := 2 + 1 + ih // tabs and status, input line plus its frame
	m.viewport.Width = max(20, width-bw)
	m.viewport.Height = max(3, height-reserved-bh)
	m.input.Width = max(10, width-8)
	m.refreshTranscript()
}

func (m *Model) refreshTranscript() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	msgs := m.chat.Messages()
	if len(msgs) == 0 {
		return hintStyle.Render("No messages yet. Upload documents, then ask a question.")
	}
	var b strings.Builder
	lastQuestion := ""
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		stamp := hintStyle.Render(msg.Timestamp.Format("15:04"))
		switch msg.Role {
		case domain.RoleUser:
			lastQuestion = msg.Content
			fmt.Fprintf(&b, "%s %s\n%s", userStyle.Render("You"), stamp, msg.Content)
		default:
			fmt.Fprintf(&b, "%s %s\n%s", assistantStyle.Render("Assistant"), stamp,
				highlightAnswer(msg.Content, lastQuestion, highlightStyle))
			if len(msg.Sources) > 0 {
				b.WriteString("\n" + sourceStyle.Render("Sources: "+strings.Join(msg.Sources, ", ")))
			}
		}
	}
	if m.chat.Pending() {
		b.WriteString("\n\n" + m.spinner.View() + " " + hintStyle.Render("waiting for the answer"))
	}
	return b.String()
}

func (m Model) chatView() string {
	return boxStyle.Render(m.viewport.View()) + "\n" + inputBoxStyle.Render(m.input.View())
}

func (m Model) documentsView() string {
	var b strings.Builder

	b.WriteString(m.ingestionView() + "\n\n")

	if m.docMode == docPickFile {
		b.WriteString(m.pathInput.View() + "\n\n")
	}
	if m.docMode == docFilter || m.filter.Value() != "" {
		b.WriteString(m.filter.View() + "\n\n")
	}

	docs := m.docs.Filter(m.filter.Value())
	if len(docs) == 0 {
		if m.filter.Value() != "" {
			b.WriteString(hintStyle.Render("No documents match the filter."))
		} else {
			b.WriteString(hintStyle.Render("No documents indexed yet."))
		}
	}
	for i, d := range docs {
		line := fmt.Sprintf("%-32s %8s  %4d chunks  %s",
			truncate(d.Name, 32),
			humanize.Bytes(uint64(max(d.SizeBytes, 0))),
			d.ChunkCount,
			uploadedAt(d),
		)
		if i == m.cursor {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(line)
	}

	hint := "a add file  enter upload/retry  / filter  r refresh  d delete  esc clear"
	return boxStyle.Render(b.String()) + "\n" + hintStyle.Render(hint)
}

func (m Model) ingestionView() string {
	st := m.docs.State()
	switch st.Phase {
	case domain.PhaseSelected:
		return "Selected " + st.FileName + ". Press enter to upload."
	case domain.PhaseUploading:
		return "Uploading " + st.FileName + " " + progressBar(st.Progress)
	case domain.PhaseIndexed:
		return "Indexed " + st.FileName + " " + progressBar(st.Progress)
	case domain.PhaseFailed:
		return errorStyle.Render("Failed " + st.FileName + ": " + st.Reason)
	default:
		return hintStyle.Render("No file selected.")
	}
}

func progressBar(pct int) string {
	pct = min(max(pct, 0), 100)
	filled := pct * progressBarWidth / 100
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", progressBarWidth-filled) + "] " +
		fmt.Sprintf("%3d%%", pct)
}

func (m Model) settingsView() string {
	statuses := [fieldCount]string{
		connectionBadge(m.settings.Status(domain.TargetLLM)),
		connectionBadge(m.settings.Status(domain.TargetVectorStore)),
		"",
	}
	var b strings.Builder
	for i := range m.fields {
		label := fmt.Sprintf("%-18s", fieldLabels[i])
		if i == m.focus {
			label = selectedStyle.Render(label)
		}
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(label + " " + m.fields[i].View())
		if statuses[i] != "" {
			b.WriteString("  " + statuses[i])
		}
	}
	hint := "up/down move  enter save  ctrl+t test LLM  ctrl+v test vector store"
	return boxStyle.Render(b.String()) + "\n" + hintStyle.Render(hint)
}

func connectionBadge(s domain.ConnectionStatus) string {
	return connectionStyles[s].Render("[" + s.String() + "]")
}

func uploadedAt(d domain.Document) string {
	if d.UploadedAt.IsZero() {
		return "-"
	}
	return humanize.Time(d.UploadedAt)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
