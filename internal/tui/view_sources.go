package tui

import (
	"fmt"

	"github.com/DariyDar/astra/internal/model"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"
)

var (
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			PaddingTop(1)

	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// sourceItem is one queried source in the top-level list.
type sourceItem struct {
	kind model.SourceKind
	model.SourceResult
}

func (s sourceItem) FilterValue() string { return string(s.kind) }
func (s sourceItem) Title() string {
	if s.Failed() {
		return fmt.Sprintf("✗ %s", s.kind)
	}
	return fmt.Sprintf("%s (%d)", s.kind, len(s.Items))
}
func (s sourceItem) Description() string {
	if s.Failed() {
		return errorStyle.Render(s.Err)
	}
	if len(s.Items) == 0 {
		return "nothing in this period"
	}
	return itemRow{s.Items[0]}.Title()
}

// sourcesToItems lists sources in query order.
func sourcesToItems(res *model.AggregateResult) []list.Item {
	items := make([]list.Item, 0, len(res.Meta.SourcesQueried))
	for _, src := range res.Meta.SourcesQueried {
		items = append(items, sourceItem{kind: src, SourceResult: res.Results[src]})
	}
	return items
}

func sourcesTitle(title string, res *model.AggregateResult) string {
	return fmt.Sprintf("%s · %s (%d items)", title, res.Query.Period, res.Meta.TotalItems)
}

func sourcesFooter(res *model.AggregateResult) string {
	return fmt.Sprintf("enter: open  r: refresh  q: quit  %d ok, %d failed, %dms",
		len(res.Meta.SourcesOK), len(res.Meta.SourcesFailed), res.Meta.QueryTimeMs)
}
