// Package menu is the interactive surface of the launcher: a terminal
// list of registered tools, grouped by category, with a run-all entry.
// It only picks; execution stays with the batch controller.
package menu

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/your-org/cmtl/internal/registry"
)

// ErrAborted is returned when the user quits without choosing.
var ErrAborted = errors.New("menu aborted")

// Choice is the user's selection.
type Choice struct {
	RunAll bool
	ToolID string
}

const runAllID = "__run_all__"

var docStyle = lipgloss.NewStyle().Margin(1, 2)

type item struct {
	id       string
	title    string
	desc     string
	category string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.title + " " + i.category }

type model struct {
	list   list.Model
	choice *Choice
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.list.FilterState() != list.Filtering {
				return m, tea.Quit
			}
		case "enter":
			if it, ok := m.list.SelectedItem().(item); ok {
				if it.id == runAllID {
					m.choice = &Choice{RunAll: true}
				} else {
					m.choice = &Choice{ToolID: it.id}
				}
				return m, tea.Quit
			}
		}
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m model) View() string {
	return docStyle.Render(m.list.View())
}

// Pick shows the tool menu for the given registry and target and blocks
// until the user selects a tool, selects run-all, or quits.
func Pick(reg *registry.Registry, target string) (Choice, error) {
	items := buildItems(reg)

	delegate := list.NewDefaultDelegate()
	l := list.New(items, delegate, 0, 0)
	l.Title = fmt.Sprintf("CMTL tools · target %s", target)
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)

	finalModel, err := tea.NewProgram(model{list: l}, tea.WithAltScreen()).Run()
	if err != nil {
		return Choice{}, fmt.Errorf("menu: %w", err)
	}

	m, ok := finalModel.(model)
	if !ok || m.choice == nil {
		return Choice{}, ErrAborted
	}
	return *m.choice, nil
}

func buildItems(reg *registry.Registry) []list.Item {
	items := []list.Item{
		item{
			id:    runAllID,
			title: "Run all tools",
			desc:  fmt.Sprintf("sequential batch over all %d registered tools", reg.Len()),
		},
	}

	for _, cat := range reg.Categories() {
		for _, d := range reg.ByCategory(cat) {
			items = append(items, toolItem(d))
		}
	}
	// Tools without a category still belong in the menu.
	for _, d := range reg.All() {
		if d.Category == "" {
			items = append(items, toolItem(d))
		}
	}
	return items
}

func toolItem(d registry.ToolDescriptor) item {
	desc := d.Category
	if d.Mode == registry.LaunchOnly {
		if desc != "" {
			desc += " · "
		}
		desc += "launches detached"
	} else {
		if desc != "" {
			desc += " · "
		}
		desc += "output captured"
	}
	return item{id: d.ID, title: d.DisplayName, desc: desc, category: d.Category}
}
