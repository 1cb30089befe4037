// Package ui renders the live job board behind the run command's --watch
// flag. The board consumes scheduler events and never touches job state
// directly.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wrap"

	"github.com/structprep/structfan/plan"
	"github.com/structprep/structfan/scheduler"
)

type row struct {
	subject  string
	state    scheduler.State
	sessions []string
}

type eventMsg scheduler.Event

// eventsClosedMsg signals that the scheduler finished and closed the event
// channel.
type eventsClosedMsg struct{}

// Board displays one line per dispatched job plus a progress footer.
type Board struct {
	plan    plan.Plan
	events  <-chan scheduler.Event
	cancel  func()
	spinner spinner.Model

	width    int
	height   int
	rows     []row
	resolved int
	total    int
	canceled bool
}

// NewBoard builds the board. cancel is invoked when the user quits early;
// the board stays up until events is closed so late completions still
// render.
func NewBoard(p plan.Plan, events <-chan scheduler.Event, cancel func()) *Board {
	s := spinner.New()
	s.Style = spinnerStyle
	return &Board{
		plan:    p,
		events:  events,
		cancel:  cancel,
		spinner: s,
		total:   p.SubjectCount,
	}
}

// Run drives the board until the event channel closes.
func Run(p plan.Plan, events <-chan scheduler.Event, cancel func()) error {
	prog := tea.NewProgram(NewBoard(p, events, cancel), tea.WithAltScreen())
	_, err := prog.Run()
	return err
}

func (m *Board) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent)
}

func (m *Board) waitForEvent() tea.Msg {
	ev, ok := <-m.events
	if !ok {
		return eventsClosedMsg{}
	}
	return eventMsg(ev)
}

func (m *Board) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.apply(scheduler.Event(msg))
		return m, m.waitForEvent
	case eventsClosedMsg:
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.canceled {
				m.canceled = true
				if m.cancel != nil {
					m.cancel()
				}
			}
			return m, nil
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Board) apply(ev scheduler.Event) {
	m.total = ev.Total
	m.resolved = ev.Resolved

	for len(m.rows) <= ev.Index {
		m.rows = append(m.rows, row{})
	}
	r := &m.rows[ev.Index]
	r.subject = ev.SubjectID
	r.state = ev.State
	if ev.Type == scheduler.EventResolved {
		r.sessions = ev.FailedSessions
	}
}

func (m *Board) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("structprep fan-out"))
	b.WriteString("\n")
	b.WriteString(planStyle.Render(m.plan.String()))
	b.WriteString("\n\n")

	visible := m.rows
	if limit := m.height - 6; limit > 0 && len(visible) > limit {
		b.WriteString(planStyle.Render(fmt.Sprintf("… %d earlier jobs", len(visible)-limit)))
		b.WriteString("\n")
		visible = visible[len(visible)-limit:]
	}
	for _, r := range visible {
		b.WriteString(m.renderRow(r))
	}

	b.WriteString("\n")
	b.WriteString(m.footer())
	return b.String()
}

func (m *Board) renderRow(r row) string {
	width := m.width
	if width <= 0 {
		width = 80
	}

	var icon string
	switch r.state {
	case scheduler.StateRunning:
		icon = m.spinner.View() + " "
	case scheduler.StateSucceeded:
		icon = okStyle.Render(okIcon)
	case scheduler.StateFailed:
		icon = failStyle.Render(failIcon)
	default:
		icon = "  "
	}

	line := icon + runewidth.Truncate(r.subject, width-4, "…") + "\n"
	if r.state == scheduler.StateFailed && len(r.sessions) > 0 {
		detail := wrap.String(strings.Join(r.sessions, " "), width-6)
		line += sessionStyle.Render(indent.String(detail, 4)) + "\n"
	}
	return line
}

func (m *Board) footer() string {
	status := fmt.Sprintf("%d/%d resolved", m.resolved, m.total)
	if m.canceled {
		return cancelStyle.Render(status + "  canceling, waiting for running jobs")
	}
	return footerStyle.Render(status + "  press q to cancel")
}
