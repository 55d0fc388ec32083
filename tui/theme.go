// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/spyglass/trace"
)

// Theme defines the color palette for the dashboard. All colors use
// lipgloss ANSI 256-color codes for broad terminal compatibility.
type Theme struct {
	// Text colors.
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Selected row.
	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	// Lifecycle status colors, shared by sessions, agents, and tool
	// uses: the glyph carries the shape, the color the verdict.
	StatusActive  lipgloss.Color
	StatusDone    lipgloss.Color
	StatusFailed  lipgloss.Color
	StatusWaiting lipgloss.Color

	// UI chrome.
	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color

	// Input prompt.
	PromptForeground lipgloss.Color
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),

	StatusActive:  lipgloss.Color("42"),
	StatusDone:    lipgloss.Color("245"),
	StatusFailed:  lipgloss.Color("196"),
	StatusWaiting: lipgloss.Color("214"),

	HeaderForeground: lipgloss.Color("39"),
	BorderColor:      lipgloss.Color("238"),
	HelpText:         lipgloss.Color("243"),

	PromptForeground: lipgloss.Color("214"),
}

// Lifecycle glyphs. One visual language across entity kinds: a filled
// dot is live, an open dot finished, a cross failed, a half dot is
// waiting on a human.
const (
	glyphActive  = "●"
	glyphDone    = "○"
	glyphFailed  = "✗"
	glyphWaiting = "◐"
)

func (theme Theme) sessionGlyph(status trace.SessionStatus) string {
	switch status {
	case trace.SessionCompleted:
		return theme.paint(glyphDone, theme.StatusDone)
	case trace.SessionFailed:
		return theme.paint(glyphFailed, theme.StatusFailed)
	default:
		return theme.paint(glyphActive, theme.StatusActive)
	}
}

func (theme Theme) agentGlyph(status trace.AgentStatus) string {
	switch status {
	case trace.AgentCompleted:
		return theme.paint(glyphDone, theme.StatusDone)
	case trace.AgentFailed:
		return theme.paint(glyphFailed, theme.StatusFailed)
	case trace.AgentWaitingInput:
		return theme.paint(glyphWaiting, theme.StatusWaiting)
	default:
		return theme.paint(glyphActive, theme.StatusActive)
	}
}

func (theme Theme) toolGlyph(status trace.ToolStatus) string {
	switch status {
	case trace.ToolCompleted:
		return theme.paint(glyphDone, theme.StatusDone)
	case trace.ToolFailed:
		return theme.paint(glyphFailed, theme.StatusFailed)
	default:
		return theme.paint(glyphActive, theme.StatusActive)
	}
}

func (theme Theme) paint(glyph string, color lipgloss.Color) string {
	return lipgloss.NewStyle().Foreground(color).Render(glyph)
}
