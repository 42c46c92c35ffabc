package model

import "encoding/json"

// SourceResult is the outcome of one source: either items or an error
// message, never both.
type SourceResult struct {
	Items []Item
	Err   string
}

// Failed reports whether the source failed.
func (r SourceResult) Failed() bool { return r.Err != "" }

// MarshalJSON encodes items as an array and failures as {"error": msg}.
func (r SourceResult) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.Err})
	}
	items := r.Items
	if items == nil {
		items = []Item{}
	}
	return json.Marshal(items)
}

func (r *SourceResult) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '{' {
		var e struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		*r = SourceResult{Err: e.Error}
		return nil
	}
	*r = SourceResult{}
	return json.Unmarshal(data, &r.Items)
}

// Meta summarizes one aggregate query.
type Meta struct {
	SourcesQueried []SourceKind `json:"sources_queried"`
	SourcesOK      []SourceKind `json:"sources_ok"`
	SourcesFailed  []SourceKind `json:"sources_failed"`
	TotalItems     int          `json:"total_items"`
	QueryTimeMs    int64        `json:"query_time_ms"`
}

// AggregateResult is the merged answer to one Query.
type AggregateResult struct {
	Query   Query                       `json:"query"`
	Results map[SourceKind]SourceResult `json:"results"`
	Meta    Meta                        `json:"meta"`
}
