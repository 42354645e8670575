// internal/tui/review.go
//
// The human review screen. It uses bubbletea, which follows The Elm
// Architecture: the model holds all state, Update reacts to messages, and
// View renders the model to a string.
//
// The reviewer reads the post in a scrollable viewport alongside the content
// metrics and the feedback trail, then either approves it or rejects it with
// comments typed into a textarea.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ferrisk/draftloop/internal/analyzer"
	"github.com/ferrisk/draftloop/internal/blogstore"
	"github.com/ferrisk/draftloop/internal/workflow"
)

// reviewPhase represents which part of the screen has control.
type reviewPhase int

const (
	phaseReading  reviewPhase = iota // scrolling the post
	phaseComments                    // typing rejection comments
	phaseDone                        // decision made, quitting
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B"))
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))
	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA"))
	rejectStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E8A33D"))
)

// reviewModel is the bubbletea model for one review session.
type reviewModel struct {
	post    blogstore.Post
	history []workflow.Feedback
	report  analyzer.Report

	phase    reviewPhase
	body     viewport.Model
	comments textarea.Model

	decision workflow.Decision
	decided  bool
	aborted  bool

	width  int
	height int
}

func newReviewModel(post blogstore.Post, history []workflow.Feedback, report analyzer.Report) reviewModel {
	body := viewport.New(80, 20)
	body.SetContent(post.Content)

	comments := textarea.New()
	comments.Placeholder = "What should change before the next draft?"
	comments.CharLimit = 2000
	comments.SetHeight(5)

	return reviewModel{
		post:     post,
		history:  history,
		report:   report,
		phase:    phaseReading,
		body:     body,
		comments: comments,
	}
}

// Init is called once when the program starts.
func (m reviewModel) Init() tea.Cmd {
	return nil
}

// Update is called when a message is received.
func (m reviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.body.Width = maxInt(20, msg.Width-6)
		m.body.Height = maxInt(5, msg.Height-16)
		m.comments.SetWidth(maxInt(20, msg.Width-6))
		return m, nil

	case tea.KeyMsg:
		switch m.phase {
		case phaseReading:
			return m.updateReading(msg)
		case phaseComments:
			return m.updateComments(msg)
		}
		return m, nil
	}

	// non-key messages (cursor blink and friends) go to the focused component
	var cmd tea.Cmd
	switch m.phase {
	case phaseReading:
		m.body, cmd = m.body.Update(msg)
	case phaseComments:
		m.comments, cmd = m.comments.Update(msg)
	}
	return m, cmd
}

func (m reviewModel) updateReading(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.aborted = true
		m.phase = phaseDone
		return m, tea.Quit
	case "a":
		m.decision = workflow.Decision{Verdict: workflow.VerdictApprove}
		m.decided = true
		m.phase = phaseDone
		return m, tea.Quit
	case "r":
		m.phase = phaseComments
		m.comments.Focus()
		return m, textarea.Blink
	}
	var cmd tea.Cmd
	m.body, cmd = m.body.Update(msg)
	return m, cmd
}

func (m reviewModel) updateComments(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.aborted = true
		m.phase = phaseDone
		return m, tea.Quit
	case "esc":
		m.phase = phaseReading
		m.comments.Blur()
		return m, nil
	case "ctrl+d":
		m.decision = workflow.Decision{
			Verdict:  workflow.VerdictReject,
			Comments: strings.TrimSpace(m.comments.Value()),
		}
		m.decided = true
		m.phase = phaseDone
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.comments, cmd = m.comments.Update(msg)
	return m, cmd
}

// View renders the current state to a string.
func (m reviewModel) View() string {
	if m.phase == phaseDone {
		return ""
	}
	header := titleStyle.Render(fmt.Sprintf("REVIEW · %s (v%d)", m.post.Title, m.post.Version))
	metrics := m.renderMetrics()
	body := panelStyle.Render(m.body.View())
	history := m.renderHistory()

	sections := []string{header, metrics, body}
	if history != "" {
		sections = append(sections, history)
	}
	switch m.phase {
	case phaseReading:
		sections = append(sections, hintStyle.Render("↑/↓ scroll    a → approve    r → reject with comments    q → abort"))
	case phaseComments:
		sections = append(sections,
			rejectStyle.Render("Rejecting. Tell the writer what to fix:"),
			m.comments.View(),
			hintStyle.Render("Ctrl+D → submit rejection    Esc → back to post"),
		)
	}
	return strings.Join(sections, "\n")
}

func (m reviewModel) renderMetrics() string {
	line := fmt.Sprintf("%d words · %d min read · %d headings · %d paragraphs · %.1f words/sentence",
		m.report.Words,
		m.report.ReadingTime,
		m.report.Structure.Headings,
		m.report.Structure.Paragraphs,
		m.report.Readability.AvgWordsPerSentence,
	)
	return labelStyle.Render("METRICS ") + hintStyle.Render(line)
}

func (m reviewModel) renderHistory() string {
	if len(m.history) == 0 {
		return ""
	}
	// most recent entries matter most; show the last few
	start := 0
	if len(m.history) > 4 {
		start = len(m.history) - 4
	}
	var rows []string
	for _, fb := range m.history[start:] {
		row := fmt.Sprintf("%s %s", fb.Source, fb.Verdict)
		if fb.Comments != "" {
			row += ": " + fb.Comments
		}
		rows = append(rows, row)
	}
	return labelStyle.Render(fmt.Sprintf("FEEDBACK (%d)", len(m.history))) + "\n" + hintStyle.Render(strings.Join(rows, "\n"))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
