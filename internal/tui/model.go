package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"histrag/internal/assembler"
	"histrag/internal/domain"
	"histrag/internal/logger"
	"histrag/internal/retrieval"
	"histrag/internal/summarizer"
)

const (
	searchTimeout = 30 * time.Second
	searchFailed  = "Erreur lors de la recherche."
)

// RAGPort is the TUI-facing subset of the RAG service.
type RAGPort interface {
	Search(ctx context.Context, query string, opts retrieval.Options) ([]domain.SearchResult, error)
}

// resultsMsg carries the outcome of an asynchronous search.
type resultsMsg struct {
	query   string
	results []domain.SearchResult
	err     error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	service    RAGPort
	opts       retrieval.Options
	summarizer *summarizer.Summarizer
	input      textinput.Model
	viewport   viewport.Model
	results    []domain.SearchResult
	subtitle   string
	status     string
	cursor     int
	ready      bool
	searching  bool
	lastQuery  string
}

// New creates a new TUI model instance. subtitle is shown under the title.
func New(service RAGPort, opts retrieval.Options, subtitle string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Posez une question et appuyez sur Entrée"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		service:    service,
		opts:       opts,
		summarizer: summarizer.New(),
		input:      ti,
		viewport:   vp,
		subtitle:   subtitle,
		status:     "Prêt.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) search(q string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
		defer cancel()
		res, err := m.service.Search(ctx, q, m.opts)
		return resultsMsg{query: q, results: res, err: err}
	}
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + footerLines + 1 + qh + 1 // header+subtitle, footer, status, input, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case resultsMsg:
		m.searching = false
		if msg.err != nil {
			logger.Error("search %q: %v", msg.query, msg.err)
			m.status = searchFailed
			m.results = nil
		} else {
			m.status = fmt.Sprintf("%d résultat(s) pour %q", len(msg.results), msg.query)
			m.results = msg.results
			m.cursor = 0
			m.lastQuery = msg.query
		}
		m.viewport.SetContent(m.renderCurrentResult())
		m.viewport.GotoTop()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.searching {
				m.searching = true
				m.status = "Recherche…"
				return m, m.search(q)
			}
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

const footerLines = 3

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Chargement..."
	}
	header := titleStyle.Render("Histoire de la ville d'Enghien")
	subtitle := dimStyle.Render(m.subtitle)
	results := resultBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + subtitle + "\n" + results + "\n" + m.renderSources() + "\n" + input + "\n" + status
}

func (m Model) renderCurrentResult() string {
	if len(m.results) == 0 {
		if m.lastQuery != "" {
			return assembler.NoResults
		}
		return "Aucune recherche pour l'instant."
	}
	r := m.results[m.cursor]
	title := locationStyle.Render(assembler.Location(r.Metadata))
	meta := dimStyle.Render(fmt.Sprintf("Résultat %d/%d  similarité=%.3f", m.cursor+1, len(m.results), r.Similarity))
	return title + "\n" + meta + "\n\n" + m.highlight(r.Content)
}

// highlight renders content with the sentence closest to the last query emphasized.
func (m Model) highlight(content string) string {
	sentences := summarizer.Sentences(content)
	if len(sentences) == 0 {
		return strings.TrimSpace(content)
	}
	best := m.summarizer.BestSentence(sentences, m.lastQuery)
	for i := range sentences {
		if i == best {
			sentences[i] = highlightStyle.Render(sentences[i])
		}
	}
	return strings.Join(sentences, " ")
}

// renderSources lists deduplicated locations, truncated to the footer height.
func (m Model) renderSources() string {
	if len(m.results) == 0 {
		return dimStyle.Render("Sources : —")
	}
	lines := strings.Split(assembler.FormatSources(m.results), "\n")
	if len(lines) > footerLines-1 {
		more := len(lines) - (footerLines - 1)
		lines = append(lines[:footerLines-1], fmt.Sprintf("  (+%d)", more))
	}
	return dimStyle.Render("Sources :\n" + strings.Join(lines, "\n"))
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	titleStyle     = lipgloss.NewStyle().Bold(true)
	locationStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)
