package briefing

import "github.com/DariyDar/astra/internal/model"

// Project keeps only the requested fields that item carries. The source
// always survives. With no fields the item is returned unchanged.
func Project(item model.Item, fields []model.FieldName) model.Item {
	if len(fields) == 0 {
		return item
	}
	out := model.Item{Source: item.Source, Values: make(map[model.FieldName]any, len(fields))}
	for _, f := range fields {
		if v, ok := item.Values[f]; ok {
			out.Values[f] = v
		}
	}
	return out
}
