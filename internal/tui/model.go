package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragchat/internal/chunker"
	"ragchat/internal/domain"
	"ragchat/internal/references"
	"ragchat/internal/service"
	"ragchat/internal/summarizer"
)

// RAGPort is the TUI-facing subset of the RAG service.
type RAGPort interface {
	Respond(ctx context.Context, source domain.Source, history []domain.Turn, message string) (*service.Reply, error)
	Ingest(ctx context.Context, source domain.Source, paths []string) (*service.IngestReport, error)
	SummarizePDF(ctx context.Context, path string, onProgress func(summarizer.Progress)) (*summarizer.Result, error)
	Overview() string
}

type role int

const (
	roleUser role = iota
	roleBot
	roleSystem
)

type entry struct {
	role role
	text string
}

type replyMsg struct {
	question string
	reply    *service.Reply
	err      error
}

type ingestMsg struct {
	paths  []string
	report *service.IngestReport
	err    error
}

type summaryMsg struct {
	path string
	res  *summarizer.Result
	err  error
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	ctx       context.Context
	service   RAGPort
	serverURL string

	input    textinput.Model
	viewport viewport.Model
	refs     viewport.Model
	spinner  spinner.Model

	source    domain.Source
	history   []domain.Turn
	entries   []entry
	results   []domain.SearchResult
	lastQuery string
	showRefs  bool
	busy      bool
	status    string
	width     int
	ready     bool
}

// New creates a chat model. serverURL is used for the document links in the
// references pane and may be empty.
func New(ctx context.Context, svc RAGPort, serverURL string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, or /summarize <file>, /upload <file>, /clear"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	m := Model{
		ctx:       ctx,
		service:   svc,
		serverURL: serverURL,
		input:     ti,
		viewport:  viewport.New(0, 0),
		refs:      viewport.New(0, 0),
		spinner:   sp,
		source:    domain.SourcePreprocessed,
		status:    "Ready. Tab: references  Ctrl+T: data source  Ctrl+C: quit",
	}
	if ov := svc.Overview(); ov != "" {
		m.entries = append(m.entries, entry{roleSystem, "Corpus overview: " + ov})
	}
	return m
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and service events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.resize(msg.Width, msg.Height)
		m.refresh()
		return m, nil
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case replyMsg:
		m.busy = false
		if msg.err != nil {
			m.entries = append(m.entries, entry{roleSystem, "Error: " + msg.err.Error()})
			m.status = "Request failed."
		} else {
			m.history = append(m.history, domain.Turn{Question: msg.question, Answer: msg.reply.Answer})
			m.entries = append(m.entries, entry{roleBot, msg.reply.Answer})
			m.results = msg.reply.Results
			m.lastQuery = msg.question
			m.status = fmt.Sprintf("Answered from %d chunks (%s).", len(msg.reply.Results), m.source)
		}
		m.refresh()
		return m, nil
	case ingestMsg:
		m.busy = false
		if msg.err != nil {
			m.entries = append(m.entries, entry{roleSystem, "Upload failed: " + msg.err.Error()})
			m.status = "Upload failed."
		} else {
			m.source = domain.SourceUploaded
			m.entries = append(m.entries, entry{roleSystem, fmt.Sprintf("Uploaded %s (%d documents, %d chunks). Now chatting with uploaded files.",
				strings.Join(msg.paths, ", "), msg.report.Documents, msg.report.Chunks)})
			m.status = "Upload finished."
		}
		m.refresh()
		return m, nil
	case summaryMsg:
		m.busy = false
		m.entries = append(m.entries, summaryEntry(msg))
		m.status = "Summary finished."
		if msg.err != nil {
			m.status = "Summary failed."
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyTab:
			m.showRefs = !m.showRefs
			m.refresh()
			return m, nil
		case tea.KeyCtrlT:
			m.source = toggle(m.source)
			m.status = fmt.Sprintf("Data source: %s", m.source)
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			if m.showRefs {
				m.refs, cmd = m.refs.Update(msg)
			} else {
				m.viewport, cmd = m.viewport.Update(msg)
			}
			return m, cmd
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			if line == "" || m.busy {
				return m, nil
			}
			m.input.Reset()
			return m.submit(line)
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit dispatches a slash command or a chat message.
func (m Model) submit(line string) (tea.Model, tea.Cmd) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/clear":
		m.history = nil
		m.entries = nil
		m.results = nil
		m.lastQuery = ""
		m.status = "Conversation cleared."
		m.refresh()
		return m, nil
	case "/upload":
		if arg == "" {
			m.status = "Usage: /upload <path>"
			return m, nil
		}
		m.entries = append(m.entries, entry{roleUser, line})
		return m.start(fmt.Sprintf("Uploading %s...", arg), m.ingestCmd(strings.Fields(arg)))
	case "/summarize":
		if arg == "" {
			m.status = "Usage: /summarize <path>"
			return m, nil
		}
		m.entries = append(m.entries, entry{roleUser, line})
		return m.start(fmt.Sprintf("Summarizing %s...", arg), m.summarizeCmd(arg))
	}
	m.entries = append(m.entries, entry{roleUser, line})
	return m.start("Thinking...", m.respondCmd(line))
}

func (m Model) start(status string, cmd tea.Cmd) (tea.Model, tea.Cmd) {
	m.busy = true
	m.status = status
	m.refresh()
	return m, tea.Batch(cmd, m.spinner.Tick)
}

func (m Model) respondCmd(question string) tea.Cmd {
	ctx, svc, source := m.ctx, m.service, m.source
	history := append([]domain.Turn(nil), m.history...)
	return func() tea.Msg {
		reply, err := svc.Respond(ctx, source, history, question)
		return replyMsg{question: question, reply: reply, err: err}
	}
}

func (m Model) ingestCmd(paths []string) tea.Cmd {
	ctx, svc := m.ctx, m.service
	return func() tea.Msg {
		report, err := svc.Ingest(ctx, domain.SourceUploaded, paths)
		return ingestMsg{paths: paths, report: report, err: err}
	}
}

func (m Model) summarizeCmd(path string) tea.Cmd {
	ctx, svc := m.ctx, m.service
	return func() tea.Msg {
		res, err := svc.SummarizePDF(ctx, path, nil)
		return summaryMsg{path: path, res: res, err: err}
	}
}

func summaryEntry(msg summaryMsg) entry {
	name := filepath.Base(msg.path)
	if msg.err != nil {
		return entry{roleSystem, fmt.Sprintf("Summary of %s failed: %v", name, msg.err)}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Summary of %s (%d pages", name, msg.res.Pages)
	if msg.res.FailedPages > 0 {
		fmt.Fprintf(&sb, ", %d failed", msg.res.FailedPages)
	}
	sb.WriteString("):\n")
	sb.WriteString(msg.res.Final)
	return entry{roleBot, sb.String()}
}

func toggle(s domain.Source) domain.Source {
	if s == domain.SourceUploaded {
		return domain.SourcePreprocessed
	}
	return domain.SourceUploaded
}

func (m *Model) resize(width, height int) {
	_, ch := chatBoxStyle.GetFrameSize()
	_, qh := queryBoxStyle.GetFrameSize()
	reserved := 1 + 1 + 1 + qh + ch // header, status, input line
	vh := max(3, height-reserved)
	w := max(20, width-2)
	m.viewport.Width, m.viewport.Height = w, vh
	m.refs.Width, m.refs.Height = w, vh
}

// refresh re-renders both panes from the model state.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderConversation())
	m.viewport.GotoBottom()
	m.refs.SetContent(m.renderReferences())
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("RAG Chat") +
		lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(fmt.Sprintf("  source: %s", m.source))
	body := chatBoxStyle.Render(m.viewport.View())
	if m.showRefs {
		body = chatBoxStyle.Render(m.refs.View())
	}
	status := m.status
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + body + "\n" + queryBoxStyle.Render(m.input.View()) + "\n" + statusStyle.Render(status)
}

func (m Model) renderConversation() string {
	if len(m.entries) == 0 {
		return "No messages yet."
	}
	wrap := lipgloss.NewStyle().Width(max(20, m.viewport.Width-2))
	parts := make([]string, len(m.entries))
	for i, e := range m.entries {
		switch e.role {
		case roleUser:
			parts[i] = userStyle.Render("You: ") + wrap.Render(e.text)
		case roleBot:
			parts[i] = botStyle.Render("Bot: ") + wrap.Render(e.text)
		default:
			parts[i] = systemStyle.Render(wrap.Render(e.text))
		}
	}
	return strings.Join(parts, "\n\n")
}

// renderReferences shows the chunks behind the last answer, with the sentence
// closest to the question highlighted.
func (m Model) renderReferences() string {
	if len(m.results) == 0 {
		return "No references yet."
	}
	lines := strings.Split(references.Format(m.results, m.serverURL), "\n")
	for i, l := range lines {
		if l == "" || strings.HasPrefix(l, "# ") || strings.HasPrefix(l, "Source: ") {
			continue
		}
		lines[i] = highlightBestSentence(l, m.lastQuery)
	}
	return strings.Join(lines, "\n")
}

var (
	chatBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	systemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
)

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := chunker.SplitSentences(text)
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestScore > 0 {
		sentences[bestIdx] = highlightStyle.Render(sentences[bestIdx])
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
