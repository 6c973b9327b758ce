// Package ui renders the conversation as a terminal chat: a status header,
// the message log as bubbles, and start/end controls.
package ui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/harunnryd/wakecall/pkg/conversation"
)

// Controller is the part of the conversation controller the UI drives.
type Controller interface {
	StartCall() error
	EndCall() error
	Subscribe() (<-chan conversation.Snapshot, func())
}

type snapshotMsg conversation.Snapshot

type closedMsg struct{}

type tickMsg time.Time

type actionMsg struct {
	action string
	err    error
}

// Model is the root Bubble Tea model.
type Model struct {
	ctrl   Controller
	snaps  <-chan conversation.Snapshot
	unsub  func()
	snap   conversation.Snapshot
	keys   keyMap
	help   help.Model
	view   viewport.Model
	status string
	now    time.Time
	width  int
	height int
	ready  bool
	closed bool
}

// New subscribes to ctrl; the subscription is released when the model quits.
func New(ctrl Controller) Model {
	snaps, unsub := ctrl.Subscribe()
	return Model{
		ctrl:  ctrl,
		snaps: snaps,
		unsub: unsub,
		keys:  defaultKeys(),
		help:  help.New(),
		view:  viewport.New(80, 20),
		now:   time.Now(),
	}
}

// Run shows the UI until the user quits or ctx ends.
func Run(ctx context.Context, ctrl Controller) error {
	_, err := tea.NewProgram(New(ctrl), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitSnapshot(m.snaps), tick())
}

func waitSnapshot(ch <-chan conversation.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return snapshotMsg(s)
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.resize()
		m.refresh()
		return m, nil

	case snapshotMsg:
		m.snap = conversation.Snapshot(msg)
		m.refresh()
		return m, waitSnapshot(m.snaps)

	case closedMsg:
		m.closed = true
		m.status = "conversation closed"
		return m, tea.Quit

	case tickMsg:
		m.now = time.Time(msg)
		return m, tick()

	case actionMsg:
		if msg.err != nil {
			m.status = msg.action + ": " + msg.err.Error()
		} else {
			m.status = ""
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.release()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Start):
			if !m.canStart() {
				return m, nil
			}
			return m, m.act("start", m.ctrl.StartCall)
		case key.Matches(msg, m.keys.End):
			if m.snap.State != conversation.StateActive {
				return m, nil
			}
			return m, m.act("end", m.ctrl.EndCall)
		}
	}

	var cmd tea.Cmd
	m.view, cmd = m.view.Update(msg)
	return m, cmd
}

func (m Model) canStart() bool {
	switch m.snap.State {
	case conversation.StateConnecting, conversation.StateActive:
		return false
	default:
		return true
	}
}

func (m Model) act(name string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{action: name, err: fn()}
	}
}

func (m *Model) release() {
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
}

func (m *Model) resize() {
	w := m.width
	if w <= 0 {
		w = 80
	}
	// header (2) + notice (1) + help (1) + spacing (2)
	h := m.height - 6
	if h < 3 {
		h = 3
	}
	m.view.Width = w
	m.view.Height = h
	m.ready = true
}

func (m *Model) refresh() {
	atBottom := m.view.AtBottom()
	m.view.SetContent(renderMessages(m.snap.Messages, m.view.Width))
	if atBottom || m.snap.State == conversation.StateActive {
		m.view.GotoBottom()
	}
}
