// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bureau-foundation/spyglass/bridge"
	"github.com/bureau-foundation/spyglass/trace"
	"github.com/bureau-foundation/spyglass/track"
)

// FocusRegion identifies which pane has keyboard focus.
type FocusRegion int

const (
	// FocusSessions means navigation keys move the session cursor.
	FocusSessions FocusRegion = iota
	// FocusDetail means navigation keys scroll the detail pane.
	FocusDetail
	// FocusInput means keystrokes go to the response prompt.
	FocusInput
)

// storeChangedMsg reports that the store advanced past the revision
// the view last rendered.
type storeChangedMsg struct{}

// noticeFadeMsg clears a transient status-bar notice.
type noticeFadeMsg struct{}

// noticeFadeDelay is how long an error or confirmation notice stays
// visible.
const noticeFadeDelay = 4 * time.Second

// Model is the bubbletea model for the dashboard.
type Model struct {
	store     *track.Store
	responder *bridge.Responder
	keys      KeyMap
	theme     Theme

	snapshot track.Snapshot
	// sessions is the visible session list: the snapshot's sessions,
	// narrowed to active ones when the filter is on.
	sessions   []*track.Session
	activeOnly bool
	tree       []*track.AgentView
	selected   int
	focus      FocusRegion
	scroll     int

	// responding is the request the input prompt is answering, nil
	// when the prompt is closed.
	responding *track.InputRequest
	input      textinput.Model

	notice string
	width  int
	height int
}

// NewModel builds the dashboard over a store and a responder.
func NewModel(store *track.Store, responder *bridge.Responder) Model {
	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 4096

	model := Model{
		store:     store,
		responder: responder,
		keys:      DefaultKeyMap,
		theme:     DefaultTheme,
		input:     input,
		width:     80,
		height:    24,
	}
	model.refresh()
	return model
}

// Init subscribes to store changes.
func (m Model) Init() tea.Cmd {
	return watchStore(m.store)
}

// watchStore blocks until the store signals a change. The signal
// coalesces, so one message may cover many events; the refresh always
// pulls the latest snapshot.
func watchStore(store *track.Store) tea.Cmd {
	return func() tea.Msg {
		<-store.Watch()
		return storeChangedMsg{}
	}
}

func noticeFade() tea.Cmd {
	return tea.Tick(noticeFadeDelay, func(time.Time) tea.Msg {
		return noticeFadeMsg{}
	})
}

// Update handles one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case storeChangedMsg:
		m.refresh()
		return m, watchStore(m.store)

	case noticeFadeMsg:
		m.notice = ""
		return m, nil

	case tea.KeyMsg:
		if m.focus == FocusInput {
			return m.updatePrompt(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.focus == FocusDetail {
			m.scroll = max(0, m.scroll-1)
		} else {
			m.select_(m.selected - 1)
		}

	case key.Matches(msg, m.keys.Down):
		if m.focus == FocusDetail {
			m.scroll++
		} else {
			m.select_(m.selected + 1)
		}

	case key.Matches(msg, m.keys.PageUp):
		if m.focus == FocusDetail {
			m.scroll = max(0, m.scroll-m.detailHeight())
		} else {
			m.select_(m.selected - m.detailHeight())
		}

	case key.Matches(msg, m.keys.PageDown):
		if m.focus == FocusDetail {
			m.scroll += m.detailHeight()
		} else {
			m.select_(m.selected + m.detailHeight())
		}

	case key.Matches(msg, m.keys.FilterActive):
		m.activeOnly = !m.activeOnly
		m.refresh()

	case key.Matches(msg, m.keys.FocusToggle):
		if m.focus == FocusSessions {
			m.focus = FocusDetail
		} else {
			m.focus = FocusSessions
		}

	case key.Matches(msg, m.keys.Respond):
		if request := m.selectedRequest(); request != nil {
			m.responding = request
			m.input.SetValue("")
			m.input.Focus()
			m.focus = FocusInput
		}
	}
	return m, nil
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.closePrompt()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		request := m.responding
		value := m.input.Value()
		m.closePrompt()
		if request == nil || value == "" {
			return m, nil
		}
		if err := m.responder.Respond(request.ID, value); err != nil {
			m.notice = respondNotice(err)
			return m, noticeFade()
		}
		m.notice = fmt.Sprintf("response sent for %s", request.ID)
		m.refresh()
		return m, noticeFade()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func respondNotice(err error) string {
	var failure *bridge.WriteFailure
	switch {
	case errors.As(err, &failure):
		return fmt.Sprintf("write failed, request still pending: %v", failure.Err)
	case errors.Is(err, bridge.ErrUnknownRequest):
		return "request is no longer pending"
	default:
		return err.Error()
	}
}

func (m *Model) closePrompt() {
	m.responding = nil
	m.input.Blur()
	m.focus = FocusSessions
}

// refresh pulls the latest snapshot and rebuilds the detail tree for
// the selected session.
func (m *Model) refresh() {
	selectedID := m.selectedSessionID()
	m.snapshot = m.store.Snapshot()

	m.sessions = m.snapshot.Sessions
	if m.activeOnly {
		m.sessions = nil
		for _, session := range m.snapshot.Sessions {
			if session.Status == trace.SessionActive {
				m.sessions = append(m.sessions, session)
			}
		}
	}

	// Keep the cursor on the same session as rows reorder under it.
	m.selected = 0
	for i, session := range m.sessions {
		if session.ID == selectedID {
			m.selected = i
			break
		}
	}
	m.rebuildTree()
}

func (m *Model) select_(index int) {
	if len(m.sessions) == 0 {
		m.selected = 0
		return
	}
	m.selected = min(max(index, 0), len(m.sessions)-1)
	m.scroll = 0
	m.rebuildTree()
}

func (m *Model) rebuildTree() {
	if id := m.selectedSessionID(); id != "" {
		m.tree = m.store.AgentTree(id)
	} else {
		m.tree = nil
	}
}

func (m Model) selectedSessionID() string {
	if m.selected >= 0 && m.selected < len(m.sessions) {
		return m.sessions[m.selected].ID
	}
	return ""
}

// selectedRequest returns the oldest pending request of the selected
// session, or failing that the oldest pending request overall.
func (m Model) selectedRequest() *track.InputRequest {
	sessionID := m.selectedSessionID()
	for _, request := range m.snapshot.Pending {
		if request.SessionID == sessionID {
			return request
		}
	}
	if len(m.snapshot.Pending) > 0 {
		return m.snapshot.Pending[0]
	}
	return nil
}
