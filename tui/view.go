// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/spyglass/trace"
	"github.com/bureau-foundation/spyglass/track"
)

// View renders the full frame: header, session list beside the detail
// pane, and a footer carrying the prompt, a notice, or the help line.
func (m Model) View() string {
	listWidth := m.width / 3
	if listWidth < 24 {
		listWidth = 24
	}
	detailWidth := m.width - listWidth - 1

	title := fmt.Sprintf("spyglass  %d sessions  rev %d",
		len(m.sessions), m.snapshot.Revision)
	if m.activeOnly {
		title += "  [active]"
	}
	header := lipgloss.NewStyle().
		Foreground(m.theme.HeaderForeground).
		Bold(true).
		Render(title)

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		m.viewSessions(listWidth, m.detailHeight()),
		lipgloss.NewStyle().
			Foreground(m.theme.BorderColor).
			Render(strings.Repeat("│\n", max(m.detailHeight()-1, 1))+"│"),
		m.viewDetail(detailWidth, m.detailHeight()),
	)

	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.viewFooter())
}

// detailHeight is the body row budget: total minus header and footer.
func (m Model) detailHeight() int {
	return max(m.height-2, 4)
}

func (m Model) viewSessions(width, height int) string {
	if len(m.sessions) == 0 {
		empty := "no sessions yet"
		if m.activeOnly {
			empty = "no active sessions"
		}
		return lipgloss.NewStyle().
			Width(width).
			Height(height).
			Foreground(m.theme.FaintText).
			Render(empty)
	}

	rows := make([]string, 0, len(m.sessions))
	for i, session := range m.sessions {
		label := sessionLabel(session)
		line := fmt.Sprintf("%s %s", m.theme.sessionGlyph(session.Status), label)
		if pending := m.pendingCount(session.ID); pending > 0 {
			line += " " + m.theme.paint(fmt.Sprintf("[%d?]", pending), m.theme.StatusWaiting)
		}

		style := lipgloss.NewStyle().Width(width).MaxHeight(1)
		if i == m.selected {
			style = style.
				Background(m.theme.SelectedBackground).
				Foreground(m.theme.SelectedForeground)
		}
		rows = append(rows, style.Render(truncate(line, width)))
	}
	return lipgloss.NewStyle().Width(width).Height(height).
		Render(strings.Join(window(rows, m.selected, height), "\n"))
}

// sessionLabel prefers the human slug, then the working directory,
// then the raw id.
func sessionLabel(session *track.Session) string {
	switch {
	case session.Slug != "":
		return session.Slug
	case session.WorkingDir != "":
		return session.WorkingDir
	default:
		return session.ID
	}
}

func (m Model) pendingCount(sessionID string) int {
	count := 0
	for _, request := range m.snapshot.Pending {
		if request.SessionID == sessionID {
			count++
		}
	}
	return count
}

func (m Model) viewDetail(width, height int) string {
	session := m.selectedSession()
	if session == nil {
		return lipgloss.NewStyle().Width(width).Height(height).Render("")
	}

	var lines []string
	faint := lipgloss.NewStyle().Foreground(m.theme.FaintText)

	lines = append(lines, fmt.Sprintf("%s %s", m.theme.sessionGlyph(session.Status), session.ID))
	if session.WorkingDir != "" {
		lines = append(lines, faint.Render("  dir    "+session.WorkingDir))
	}
	if session.GitBranch != "" {
		lines = append(lines, faint.Render("  branch "+session.GitBranch))
	}
	if session.Summary != "" {
		lines = append(lines, faint.Render("  "+truncate(session.Summary, width-2)))
	}
	lines = append(lines, faint.Render(fmt.Sprintf("  %d messages, last activity %s",
		session.MessageCount, session.LastActivity.Format(time.TimeOnly))))
	lines = append(lines, "")

	for _, root := range m.tree {
		lines = m.renderAgent(lines, root, 0, width)
	}

	visible := lines
	if m.scroll > 0 {
		if m.scroll >= len(visible) {
			visible = nil
		} else {
			visible = visible[m.scroll:]
		}
	}
	if len(visible) > height {
		visible = visible[:height]
	}
	return lipgloss.NewStyle().Width(width).Height(height).
		Render(strings.Join(visible, "\n"))
}

func (m Model) renderAgent(lines []string, agent *track.AgentView, depth, width int) []string {
	indent := strings.Repeat("  ", depth)
	faint := lipgloss.NewStyle().Foreground(m.theme.FaintText)

	name := agent.Type
	if name == "" {
		name = "agent"
	}
	header := fmt.Sprintf("%s%s %s", indent, m.theme.agentGlyph(agent.Status), name)
	if agent.Description != "" {
		header += faint.Render("  " + agent.Description)
	}
	if agent.TokensUsed > 0 {
		header += faint.Render(fmt.Sprintf("  %dtok", agent.TokensUsed))
	}
	lines = append(lines, truncate(header, width))

	for _, tool := range agent.ToolUses {
		row := fmt.Sprintf("%s  %s %s", indent, m.theme.toolGlyph(tool.Status), tool.DisplayName())
		if duration := tool.Duration(); duration > 0 {
			row += faint.Render("  " + duration.Round(time.Millisecond).String())
		}
		if tool.Error != "" {
			row += " " + m.theme.paint(truncate(tool.Error, width/2), m.theme.StatusFailed)
		}
		lines = append(lines, truncate(row, width))
	}

	for _, request := range agent.Requests {
		if request.Status != trace.RequestPending {
			continue
		}
		row := fmt.Sprintf("%s  %s %s", indent,
			m.theme.paint(glyphWaiting, m.theme.StatusWaiting),
			truncate(request.Prompt, width-depth*2-8))
		lines = append(lines, row)
		for _, option := range request.Options {
			lines = append(lines, faint.Render(fmt.Sprintf("%s      %s) %s",
				indent, option.Value, option.Label)))
		}
	}

	for _, child := range agent.Children {
		lines = m.renderAgent(lines, child, depth+1, width)
	}
	return lines
}

func (m Model) viewFooter() string {
	if m.focus == FocusInput && m.responding != nil {
		prompt := lipgloss.NewStyle().
			Foreground(m.theme.PromptForeground).
			Render(truncate(m.responding.Prompt, m.width/2))
		return prompt + " " + m.input.View()
	}
	if m.notice != "" {
		return lipgloss.NewStyle().Foreground(m.theme.StatusWaiting).Render(m.notice)
	}
	return lipgloss.NewStyle().Foreground(m.theme.HelpText).
		Render("j/k move · tab pane · a active only · r respond · q quit")
}

func (m Model) selectedSession() *track.Session {
	if m.selected >= 0 && m.selected < len(m.sessions) {
		return m.sessions[m.selected]
	}
	return nil
}

// window slices rows so the selected row stays visible in a pane of
// the given height.
func window(rows []string, selected, height int) []string {
	if len(rows) <= height {
		return rows
	}
	start := selected - height/2
	start = min(max(start, 0), len(rows)-height)
	return rows[start : start+height]
}

// truncate clips to the display width without breaking escape
// sequences embedded by styling.
func truncate(s string, width int) string {
	if width <= 1 {
		return s
	}
	return ansi.Truncate(s, width, "…")
}
