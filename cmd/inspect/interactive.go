package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/memimage"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type pane int

const (
	paneOverview pane = iota
	paneDependencies
	paneVTables
	paneNames
	paneHex
	paneCount
)

var paneNamesList = [...]string{
	paneOverview:     "Overview",
	paneDependencies: "Dependencies",
	paneVTables:      "VTable patches",
	paneNames:        "Name patches",
	paneHex:          "Hex view",
}

type modelState int

const (
	stateSelectPane modelState = iota
	stateShowPane
)

type inspectModel struct {
	err       error
	res       *memimage.Result
	filename  string
	state     modelState
	selected  pane
	hexOffset int
	gotoInput textinput.Model
}

type loadedMsg struct {
	err error
	res *memimage.Result
}

func newInspectModel(filename string) *inspectModel {
	ti := textinput.New()
	ti.Placeholder = "offset (hex or dec)"
	ti.Prompt = "goto: "
	ti.Width = 24
	return &inspectModel{
		filename:  filename,
		state:     stateSelectPane,
		gotoInput: ti,
	}
}

func (m *inspectModel) Init() tea.Cmd {
	return m.loadArtifact
}

func (m *inspectModel) loadArtifact() tea.Msg {
	f, err := os.Open(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}
	defer f.Close()

	res, err := memimage.ReadResult(f)
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{res: res}
}

const hexPage = 256

func (m *inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectPane && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectPane && m.selected < paneCount-1 {
				m.selected++
			}

		case "pgdown", "f":
			if m.state == stateShowPane && m.selected == paneHex {
				if m.hexOffset+hexPage < len(m.res.Buffer) {
					m.hexOffset += hexPage
				}
			}

		case "pgup", "b":
			if m.state == stateShowPane && m.selected == paneHex {
				m.hexOffset -= hexPage
				if m.hexOffset < 0 {
					m.hexOffset = 0
				}
			}

		case "enter":
			switch m.state {
			case stateSelectPane:
				if m.res != nil {
					m.state = stateShowPane
					if m.selected == paneHex {
						m.gotoInput.SetValue("")
						m.gotoInput.Focus()
					}
				}
			case stateShowPane:
				if m.selected == paneHex {
					if off, ok := parseOffset(m.gotoInput.Value()); ok {
						m.hexOffset = off &^ 15
						if m.hexOffset >= len(m.res.Buffer) {
							m.hexOffset = (len(m.res.Buffer) - 1) &^ 15
						}
					}
					m.gotoInput.SetValue("")
				}
			}

		case "esc":
			if m.state == stateShowPane {
				m.state = stateSelectPane
				m.gotoInput.Blur()
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.res = msg.res
	}

	if m.state == stateShowPane && m.selected == paneHex {
		var cmd tea.Cmd
		m.gotoInput, cmd = m.gotoInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func parseOffset(s string) (int, bool) {
	s = strings.TrimSpace(strings.TrimPrefix(s, "0x"))
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseInt(s, 16, 64); err == nil {
		return int(v), true
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return int(v), true
	}
	return 0, false
}

func (m *inspectModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.res == nil {
		return "Loading artifact..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Frozen Image Inspector"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectPane:
		for i := pane(0); i < paneCount; i++ {
			line := "  " + paneNamesList[i]
			if i == m.selected {
				line = selectedStyle.Render("> " + paneNamesList[i])
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter open • q quit"))

	case stateShowPane:
		b.WriteString(labelStyle.Render(paneNamesList[m.selected]))
		b.WriteString("\n\n")
		b.WriteString(m.renderPane())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render(m.paneHelp()))
	}
	return b.String()
}

func (m *inspectModel) paneHelp() string {
	if m.selected == paneHex {
		return "pgup/pgdn scroll • type offset + enter to jump • esc back • q quit"
	}
	return "esc back • q quit"
}

func (m *inspectModel) renderPane() string {
	res := m.res
	var b strings.Builder

	switch m.selected {
	case paneOverview:
		row := func(k, v string) {
			b.WriteString(labelStyle.Render(fmt.Sprintf("%-16s", k)))
			b.WriteString(valueStyle.Render(v))
			b.WriteString("\n")
		}
		row("Buffer", fmt.Sprintf("%d bytes", len(res.Buffer)))
		row("Layout", describeParams(res.Params, res.ReadOnly))
		row("Dependencies", strconv.Itoa(len(res.Dependencies)))
		row("VTable patches", strconv.Itoa(len(res.VTables)))
		row("Name patches", strconv.Itoa(len(res.Names)))

	case paneDependencies:
		if len(res.Dependencies) == 0 {
			b.WriteString(helpStyle.Render("(none)"))
			break
		}
		for _, dep := range res.Dependencies {
			b.WriteString(fmt.Sprintf("%016x  layout %s\n",
				dep.NameHash, valueStyle.Render(fmt.Sprintf("%016x", dep.LayoutHash))))
		}

	case paneVTables:
		if len(res.VTables) == 0 {
			b.WriteString(helpStyle.Render("(none)"))
			break
		}
		for _, vp := range res.VTables {
			b.WriteString(fmt.Sprintf("type %016x slot %-4d %s\n",
				vp.TypeNameHash, vp.SlotOffset,
				valueStyle.Render(fmt.Sprintf("%v", vp.Offsets))))
		}

	case paneNames:
		if len(res.Names) == 0 {
			b.WriteString(helpStyle.Render("(none)"))
			break
		}
		for _, np := range res.Names {
			b.WriteString(fmt.Sprintf("%-24q %s\n",
				np.Name, valueStyle.Render(fmt.Sprintf("%v", np.Offsets))))
		}

	case paneHex:
		end := m.hexOffset + hexPage
		b.WriteString(formatHex(res.Buffer, m.hexOffset, end))
		b.WriteString("\n")
		b.WriteString(m.gotoInput.View())
	}
	return b.String()
}

func runInteractive(filename string) error {
	p := tea.NewProgram(newInspectModel(filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
