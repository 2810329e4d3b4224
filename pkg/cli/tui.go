/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cli

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/carverauto/netpresence/pkg/keenetic"
)

// Dracula theme colors.
const (
	draculaForeground = "#F8F8F2"
	draculaCyan       = "#8BE9FD"
	draculaGreen      = "#50FA7B"
	draculaOrange     = "#FFB86C"
	draculaPink       = "#FF79C6"
	draculaPurple     = "#BD93F9"
	draculaRed        = "#FF5555"
	draculaYellow     = "#F1FA8C"
	draculaComment    = "#6272A4"
)

const (
	hashPadding      = 2
	hashPaddingSides = 4
	inputWidth       = 40

	fieldLogin     = 0
	fieldRealm     = 1
	fieldPassword  = 2
	fieldChallenge = 3
	focusedDone    = 4
)

var fieldLabels = []string{"Login:", "Realm:", "Password:", "Challenge:"}

func newStyles() styles {
	return styles{
		focused: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaPink)).
			Bold(true),
		focused2: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaYellow)),
		help: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaComment)),
		hint: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaOrange)),
		success: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaGreen)),
		error: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaRed)).
			Bold(true),
		hash: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaGreen)).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(draculaPurple)),
		app: lipgloss.NewStyle().
			Padding(1, hashPadding).
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color(draculaCyan)).
			Foreground(lipgloss.Color(draculaForeground)),
	}
}

func newInput(placeholder string) textinput.Model {
	in := textinput.New()
	in.Placeholder = placeholder
	in.Width = inputWidth
	in.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(draculaCyan))
	in.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(draculaForeground))
	in.PlaceholderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(draculaComment))

	return in
}

// newDigestModel builds the digest form, prefilled from cfg.
func newDigestModel(cfg *CmdConfig, canCopy bool, copyFn func(string) error) *digestModel {
	login := newInput("admin")
	login.SetValue(cfg.Login)

	realm := newInput("realm header from /auth")
	realm.SetValue(cfg.Realm)

	password := newInput("router password")
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'
	password.SetValue(cfg.Password)

	challenge := newInput("challenge header from /auth")
	challenge.SetValue(cfg.Challenge)

	m := &digestModel{
		inputs:  []textinput.Model{login, realm, password, challenge},
		focused: fieldLogin,
		canCopy: canCopy,
		copy:    copyFn,
		styles:  newStyles(),
	}

	m.inputs[fieldLogin].Focus()

	return m
}

func initialDigestModel(cfg *CmdConfig) *digestModel {
	canCopy := true
	if err := clipboard.WriteAll(""); err != nil {
		canCopy = false
	}

	return newDigestModel(cfg, canCopy, clipboard.WriteAll)
}

func (*digestModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *digestModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	if m.focused < focusedDone {
		m.inputs[m.focused], cmd = m.inputs[m.focused].Update(msg)
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		return m.handleKeyMsg(keyMsg, cmd)
	}

	return m, cmd
}

func (m *digestModel) handleKeyMsg(msg tea.KeyMsg, cmd tea.Cmd) (tea.Model, tea.Cmd) {
	//nolint:exhaustive // Default case handles all unlisted keys
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyEnter:
		return m.handleEnter(cmd)
	case tea.KeyTab, tea.KeyDown:
		return m.moveFocus(1, cmd)
	case tea.KeyShiftTab, tea.KeyUp:
		return m.moveFocus(-1, cmd)
	default:
		return m.handleDefault(msg, cmd)
	}
}

func (m *digestModel) handleEnter(cmd tea.Cmd) (tea.Model, tea.Cmd) {
	switch {
	case m.focused == focusedDone:
		m.reset()
		return m, textinput.Blink
	case m.focused == fieldChallenge:
		return m.computeDigest()
	default:
		return m.moveFocus(1, cmd)
	}
}

func (m *digestModel) moveFocus(delta int, cmd tea.Cmd) (tea.Model, tea.Cmd) {
	if m.focused == focusedDone {
		return m, cmd
	}

	m.inputs[m.focused].Blur()
	m.focused = (m.focused + delta + len(m.inputs)) % len(m.inputs)
	m.inputs[m.focused].Focus()

	return m, textinput.Blink
}

// reset returns to the form keeping login, realm and password, so a new
// challenge can be pasted.
func (m *digestModel) reset() {
	m.focused = fieldChallenge
	m.inputs[fieldChallenge].SetValue("")
	m.inputs[fieldChallenge].Focus()
	m.digest = ""
	m.copyMessage = ""
}

func (m *digestModel) handleDefault(msg tea.KeyMsg, cmd tea.Cmd) (tea.Model, tea.Cmd) {
	if m.focused == focusedDone && msg.String() == "c" && m.canCopy {
		if err := m.copy(m.digest); err != nil {
			m.copyMessage = "Failed to copy to clipboard"
		} else {
			m.copyMessage = "Digest copied to clipboard!"
		}
	}

	return m, cmd
}

func (m *digestModel) value(field int) string {
	return strings.TrimSpace(m.inputs[field].Value())
}

func (m *digestModel) computeDigest() (tea.Model, tea.Cmd) {
	login, realm, challenge := m.value(fieldLogin), m.value(fieldRealm), m.value(fieldChallenge)

	if login == "" || realm == "" || challenge == "" {
		m.err = errDigestFields
		return m, nil
	}

	m.inputs[m.focused].Blur()
	m.digest = keenetic.ComputeDigest(login, realm, m.inputs[fieldPassword].Value(), challenge)
	m.err = nil
	m.focused = focusedDone
	m.copyMessage = ""

	return m, nil
}

func (m *digestModel) View() string {
	var content strings.Builder

	title := lipgloss.JoinHorizontal(
		lipgloss.Top,
		lipgloss.NewStyle().Foreground(lipgloss.Color(draculaPurple)).Render("🔑 "),
		m.styles.focused.Render("netpresence: Router Digest Calculator"),
	)

	content.WriteString(title + "\n\n")

	if m.focused < focusedDone {
		content.WriteString(m.renderInputView())
	} else {
		content.WriteString(m.renderResultView())
	}

	if m.err != nil {
		content.WriteString("\n\n")
		content.WriteString(m.styles.error.Render(fmt.Sprintf("Error: %v", m.err)))
	}

	return m.styles.app.Align(lipgloss.Left).Render(content.String())
}

func (m *digestModel) renderInputView() string {
	var content strings.Builder

	for i, in := range m.inputs {
		label := m.styles.help.Render(fieldLabels[i])
		if i == m.focused {
			label = m.styles.focused2.Render(fieldLabels[i])
		}

		content.WriteString(lipgloss.JoinVertical(lipgloss.Left, label, in.View()) + "\n\n")
	}

	content.WriteString(m.styles.help.Render("Enter → next field | Tab → switch field | Ctrl+C/Esc → quit"))

	return content.String()
}

func (m *digestModel) renderResultView() string {
	var content strings.Builder

	label := m.styles.focused2.Render("Digest (POST as \"password\" to /auth):")
	box := m.styles.hash.
		Width(len(m.digest) + hashPaddingSides).
		Padding(0, hashPadding).
		Render(m.digest)

	content.WriteString(lipgloss.JoinVertical(lipgloss.Left, label, box) + "\n\n")

	hint := "Select the digest to copy it"
	if m.canCopy {
		hint = "Press C to copy"
	}

	hintSection := lipgloss.JoinVertical(
		lipgloss.Left,
		m.styles.hint.Render(hint),
		m.styles.help.Render("Enter → new challenge | Ctrl+C/Esc → quit"),
	)

	if m.copyMessage != "" {
		messageStyle := m.styles.success
		if strings.HasPrefix(m.copyMessage, "Failed") {
			messageStyle = m.styles.error
		}

		hintSection = lipgloss.JoinVertical(lipgloss.Left, hintSection, messageStyle.Render(m.copyMessage))
	}

	content.WriteString(hintSection)

	return content.String()
}
