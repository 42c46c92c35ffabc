// Package tui is an interactive viewer for one briefing result.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DariyDar/astra/internal/briefing"
	"github.com/DariyDar/astra/internal/model"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

type viewState int

const (
	viewLoading viewState = iota
	viewSources           // one row per queried source
	viewItems             // items of one source
	viewDetail            // every field of one item
)

// QueryFunc runs the query being viewed. It is called again on refresh.
type QueryFunc func(ctx context.Context) briefing.Outcome

type AppModel struct {
	query QueryFunc
	title string
	Err   error

	view           viewState
	result         *model.AggregateResult
	selectedSource model.SourceKind
	selectedItem   *model.Item

	spinner     spinner.Model
	sourcesList list.Model
	itemsList   list.Model
	detail      viewport.Model

	width, height int
}

func NewAppModel(title string, query QueryFunc) *AppModel {
	sl := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	// Leave esc for navigation.
	sl.KeyMap.Quit.SetKeys("q")
	il := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	il.KeyMap.Quit.SetKeys("q")

	return &AppModel{
		query:       query,
		title:       title,
		view:        viewLoading,
		spinner:     spinner.New(spinner.WithSpinner(spinner.Dot)),
		sourcesList: sl,
		itemsList:   il,
		detail:      viewport.New(0, 0),
	}
}

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.queryCmd())
}

func (m *AppModel) queryCmd() tea.Cmd {
	return func() tea.Msg {
		return queryDoneMsg{outcome: m.query(context.Background())}
	}
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		listH := msg.Height - 4 // room for footer
		m.sourcesList.SetSize(msg.Width, listH)
		m.itemsList.SetSize(msg.Width, listH)
		m.detail.Width = msg.Width
		m.detail.Height = msg.Height - 4
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if m.view != viewLoading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case queryDoneMsg:
		if !msg.outcome.OK() {
			m.Err = errors.New(msg.outcome.Err)
			return m, tea.Quit
		}
		m.result = msg.outcome.Result
		m.sourcesList.SetItems(sourcesToItems(m.result))
		m.sourcesList.Title = sourcesTitle(m.title, m.result)
		m.view = viewSources
		return m, nil
	}

	var cmd tea.Cmd
	switch m.view {
	case viewSources:
		m.sourcesList, cmd = m.sourcesList.Update(msg)
	case viewItems:
		m.itemsList, cmd = m.itemsList.Update(msg)
	case viewDetail:
		m.detail, cmd = m.detail.Update(msg)
	}
	return m, cmd
}

func (m *AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.view {
	case viewLoading:
		if key == "q" {
			return m, tea.Quit
		}
		return m, nil

	case viewSources:
		if m.sourcesList.FilterState() == list.Filtering {
			var cmd tea.Cmd
			m.sourcesList, cmd = m.sourcesList.Update(msg)
			return m, cmd
		}
		switch key {
		case "q":
			return m, tea.Quit
		case "enter":
			return m.enterSource()
		case "r":
			m.view = viewLoading
			return m, tea.Batch(m.spinner.Tick, m.queryCmd())
		}
		var cmd tea.Cmd
		m.sourcesList, cmd = m.sourcesList.Update(msg)
		return m, cmd

	case viewItems:
		if m.itemsList.FilterState() == list.Filtering {
			var cmd tea.Cmd
			m.itemsList, cmd = m.itemsList.Update(msg)
			return m, cmd
		}
		switch key {
		case "q":
			return m, tea.Quit
		case "esc":
			m.view = viewSources
			m.selectedSource = ""
			return m, nil
		case "enter":
			return m.enterItem()
		}
		var cmd tea.Cmd
		m.itemsList, cmd = m.itemsList.Update(msg)
		return m, cmd

	case viewDetail:
		switch key {
		case "q":
			return m, tea.Quit
		case "esc":
			m.view = viewItems
			m.selectedItem = nil
			return m, nil
		}
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *AppModel) enterSource() (tea.Model, tea.Cmd) {
	selected, ok := m.sourcesList.SelectedItem().(sourceItem)
	if !ok || selected.Failed() {
		return m, nil
	}
	m.selectedSource = selected.kind
	m.itemsList.SetItems(itemsToListItems(selected.Items))
	m.itemsList.Title = fmt.Sprintf("%s (%d items)", selected.kind, len(selected.Items))
	m.view = viewItems
	return m, nil
}

func (m *AppModel) enterItem() (tea.Model, tea.Cmd) {
	selected, ok := m.itemsList.SelectedItem().(itemRow)
	if !ok {
		return m, nil
	}
	it := selected.Item
	m.selectedItem = &it
	m.detail.SetContent(renderDetail(it))
	m.detail.GotoTop()
	m.view = viewDetail
	return m, nil
}

// View renders the appropriate view based on current state.
func (m *AppModel) View() string {
	if m.Err != nil {
		return "Error: " + m.Err.Error() + "\n"
	}
	if m.view == viewLoading {
		return fmt.Sprintf("%s Querying %s...\n", m.spinner.View(), m.title)
	}

	var b strings.Builder
	switch m.view {
	case viewSources:
		b.WriteString(m.sourcesList.View())
		b.WriteString("\n")
		b.WriteString(footerStyle.Render(sourcesFooter(m.result)))
	case viewItems:
		b.WriteString(m.itemsList.View())
		b.WriteString("\n")
		b.WriteString(footerStyle.Render("enter: details  /: filter  esc: back  q: quit"))
	case viewDetail:
		b.WriteString(m.detail.View())
		b.WriteString("\n")
		b.WriteString(footerStyle.Render("↑/↓: scroll  esc: back  q: quit"))
	}
	return b.String()
}

// trimDate converts an RFC3339 timestamp to a short date string.
func trimDate(rfc3339 string) string {
	if rfc3339 == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, rfc3339); err == nil {
		return t.Local().Format("Jan 2 15:04")
	}
	return rfc3339
}
