// Package display renders a run's progress. The live view is a
// bubbletea program fed by bus events; when stdout is not a terminal the
// command falls back to the plain renderer in this package.
package display

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ralph-agent/ralph/internal/event"
	"github.com/ralph-agent/ralph/internal/task"
)

// maxLogLines bounds the scrollback kept in the event viewport.
const maxLogLines = 200

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	phaseStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// busMsg wraps a bus event for the tea runtime.
type busMsg struct{ ev event.Event }

// doneMsg ends the program when the run finishes.
type doneMsg struct{ success bool }

// Model is the live-view bubbletea model.
type Model struct {
	spinner  spinner.Model
	viewport viewport.Model
	ready    bool

	sessionID string
	phase     string
	running   bool
	tasks     []task.Task
	log       []string
	question  string
	finished  bool
	success   bool

	events <-chan event.Event
	doneCh <-chan bool
}

// NewModel creates the live-view model. events delivers bus events;
// done delivers the final run outcome.
func NewModel(sessionID string, events <-chan event.Event, done <-chan bool) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = phaseStyle
	return Model{
		spinner:   sp,
		sessionID: sessionID,
		events:    events,
		doneCh:    done,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent(), m.waitForDone())
}

func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return nil
		}
		return busMsg{ev: ev}
	}
}

func (m Model) waitForDone() tea.Cmd {
	return func() tea.Msg {
		return doneMsg{success: <-m.doneCh}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		logHeight := msg.Height - 10
		if logHeight < 3 {
			logHeight = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, logHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = logHeight
		}
		m.refreshLog()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case busMsg:
		m.apply(msg.ev)
		return m, m.waitForEvent()

	case doneMsg:
		m.finished = true
		m.success = msg.success
		m.running = false
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// apply folds one bus event into the model state.
func (m *Model) apply(ev event.Event) {
	switch e := ev.(type) {
	case event.PhaseStartedEvent:
		m.phase = e.PhaseName
		m.running = true
		m.appendLog(phaseStyle.Render("▶ " + e.PhaseName))
	case event.PhaseCompletedEvent:
		m.running = false
		mark := doneStyle.Render("✓")
		if !e.Success {
			mark = errStyle.Render("✗")
		}
		m.appendLog(fmt.Sprintf("%s %s (%dms) %s", mark, e.PhaseName, e.DurationMs, e.Message))
	case event.TasksReplacedEvent:
		m.tasks = e.Tasks
	case event.TaskStatusChangedEvent:
		for i := range m.tasks {
			if m.tasks[i].ID == e.TaskID {
				m.tasks[i].Status = e.To
				break
			}
		}
	case event.ToolStateChangedEvent:
		m.appendLog(pendingStyle.Render(fmt.Sprintf("tool %s: %s", e.Name, e.State)))
	case event.QuestionAskedEvent:
		m.question = e.Prompt
	case event.MessageDispatchedEvent:
		m.appendLog(pendingStyle.Render("» " + e.Text))
	case event.PersistFailedEvent:
		m.appendLog(errStyle.Render("persist failed: " + e.Error))
	case event.FeatureListChangedEvent:
		m.appendLog(pendingStyle.Render("feature list updated"))
	}
}

func (m *Model) appendLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
	m.refreshLog()
}

func (m *Model) refreshLog() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.log, "\n"))
	m.viewport.GotoBottom()
}

// View implements tea.Model.
func (m Model) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("ralph"))
	sb.WriteString(footerStyle.Render("  session " + m.sessionID))
	sb.WriteString("\n\n")

	switch {
	case m.finished && m.success:
		sb.WriteString(doneStyle.Render("run complete"))
	case m.finished:
		sb.WriteString(errStyle.Render("run failed"))
	case m.running:
		sb.WriteString(m.spinner.View())
		sb.WriteString(phaseStyle.Render(m.phase))
	default:
		sb.WriteString(pendingStyle.Render("waiting"))
	}
	sb.WriteString("\n\n")

	sb.WriteString(RenderTaskList(m.tasks))

	if m.question != "" {
		sb.WriteString("\n")
		sb.WriteString(activeStyle.Render("? " + m.question))
		sb.WriteString("\n")
	}

	if m.ready {
		sb.WriteString("\n")
		sb.WriteString(m.viewport.View())
	}

	sb.WriteString("\n")
	sb.WriteString(footerStyle.Render("q to quit"))
	sb.WriteString("\n")
	return sb.String()
}

// RenderTaskList renders the styled task checklist.
func RenderTaskList(tasks []task.Task) string {
	if len(tasks) == 0 {
		return pendingStyle.Render("no tasks yet") + "\n"
	}
	var sb strings.Builder
	for _, t := range tasks {
		label := t.Content
		var line string
		switch t.Status {
		case task.StatusCompleted:
			line = doneStyle.Render("  ✓ " + label)
		case task.StatusError:
			line = errStyle.Render("  ✗ " + label)
		case task.StatusInProgress:
			if t.ActiveForm != "" {
				label = t.ActiveForm
			}
			line = activeStyle.Render("  → " + label)
		default:
			line = pendingStyle.Render("  · " + label)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}
