package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/DariyDar/astra/internal/model"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			PaddingBottom(1)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// itemRow wraps a normalized item for the list display.
type itemRow struct {
	model.Item
}

func (r itemRow) FilterValue() string {
	return strings.Join([]string{
		r.String(model.FieldSubject),
		r.String(model.FieldAuthor),
		r.String(model.FieldChannel),
		r.String(model.FieldTextPreview),
	}, " ")
}

func (r itemRow) Title() string {
	for _, f := range []model.FieldName{model.FieldSubject, model.FieldTextPreview, model.FieldText} {
		if s := r.String(f); s != "" {
			return firstLine(s)
		}
	}
	return "(empty)"
}

func (r itemRow) Description() string {
	var parts []string
	if ch := r.String(model.FieldChannel); ch != "" {
		parts = append(parts, "#"+ch)
	}
	for _, f := range []model.FieldName{model.FieldAuthor, model.FieldAssignee, model.FieldStatus} {
		if s := r.String(f); s != "" {
			parts = append(parts, s)
		}
	}
	if d := r.String(model.FieldDate); d != "" {
		parts = append(parts, trimDate(d))
	} else if d := r.String(model.FieldDueDate); d != "" {
		parts = append(parts, "due "+trimDate(d))
	}
	return strings.Join(parts, "  ")
}

func itemsToListItems(items []model.Item) []list.Item {
	out := make([]list.Item, len(items))
	for i, it := range items {
		out[i] = itemRow{it}
	}
	return out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// renderDetail prints every present field of an item, sorted by name.
func renderDetail(it model.Item) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%s: %s", it.Source, itemRow{it}.Title())))
	b.WriteString("\n")

	keys := make([]string, 0, len(it.Values))
	for k := range it.Values {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(labelStyle.Render(k + ":"))
		b.WriteString(" ")
		b.WriteString(formatValue(it.Values[model.FieldName(k)]))
		b.WriteString("\n")
	}
	return b.String()
}

func formatValue(v any) string {
	switch v := v.(type) {
	case []string:
		return "\n  " + strings.Join(v, "\n  ")
	case []any:
		parts := make([]string, len(v))
		for i, x := range v {
			parts[i] = fmt.Sprint(x)
		}
		return "\n  " + strings.Join(parts, "\n  ")
	default:
		return fmt.Sprint(v)
	}
}
