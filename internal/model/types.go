package model

import (
	"bytes"
	"encoding/json"
	"sort"
)

// SourceKind identifies one external information provider.
type SourceKind string

const (
	SourceSlack    SourceKind = "slack"
	SourceGmail    SourceKind = "gmail"
	SourceCalendar SourceKind = "calendar"
	SourceClickUp  SourceKind = "clickup"
)

// AllSources lists every known source in canonical order.
var AllSources = []SourceKind{SourceSlack, SourceGmail, SourceCalendar, SourceClickUp}

// Valid reports whether s is one of the known sources.
func (s SourceKind) Valid() bool {
	switch s {
	case SourceSlack, SourceGmail, SourceCalendar, SourceClickUp:
		return true
	}
	return false
}

// UsesGoogleOAuth reports whether the source authenticates with the shared
// Google OAuth credential.
func (s SourceKind) UsesGoogleOAuth() bool {
	return s == SourceGmail || s == SourceCalendar
}

// QueryType selects what a source is asked for.
type QueryType string

const (
	QueryRecent QueryType = "recent"
	QueryDigest QueryType = "digest"
	QuerySearch QueryType = "search"
	QueryUnread QueryType = "unread"
)

func (t QueryType) Valid() bool {
	switch t {
	case QueryRecent, QueryDigest, QuerySearch, QueryUnread:
		return true
	}
	return false
}

// FieldName is a key of a normalized item.
type FieldName string

const (
	FieldAuthor      FieldName = "author"
	FieldDate        FieldName = "date"
	FieldText        FieldName = "text"
	FieldTextPreview FieldName = "text_preview"
	FieldSubject     FieldName = "subject"
	FieldLinks       FieldName = "links"
	FieldThreadInfo  FieldName = "thread_info"
	FieldStatus      FieldName = "status"
	FieldAssignee    FieldName = "assignee"
	FieldDueDate     FieldName = "due_date"
	FieldChannel     FieldName = "channel"

	// Variant-only fields.
	FieldEndDate   FieldName = "end_date"
	FieldAttendees FieldName = "attendees"
	FieldUnread    FieldName = "is_unread"
)

var knownFields = map[FieldName]bool{
	FieldAuthor: true, FieldDate: true, FieldText: true, FieldTextPreview: true,
	FieldSubject: true, FieldLinks: true, FieldThreadInfo: true, FieldStatus: true,
	FieldAssignee: true, FieldDueDate: true, FieldChannel: true,
	FieldEndDate: true, FieldAttendees: true, FieldUnread: true,
}

func (f FieldName) Valid() bool { return knownFields[f] }

// sourceKey is the discriminator key in the flat JSON form of an Item.
const sourceKey = "source"

// Query is the validated, internal form of one aggregation request.
type Query struct {
	Sources        []SourceKind `json:"sources"`
	Type           QueryType    `json:"query_type"`
	Period         string       `json:"period,omitempty"`
	SearchTerm     string       `json:"search_term,omitempty"`
	SlackChannels  []string     `json:"slack_channels,omitempty"`
	LimitPerSource int          `json:"limit_per_source"`
	Fields         []FieldName  `json:"fields,omitempty"`
}

// Item is a normalized item from any source. Only fields the source
// populated are present in Values.
type Item struct {
	Source SourceKind
	Values map[FieldName]any
}

// Get returns the value of field f and whether it is present.
func (it Item) Get(f FieldName) (any, bool) {
	v, ok := it.Values[f]
	return v, ok
}

// String returns a string-valued field, or "" when absent.
func (it Item) String(f FieldName) string {
	s, _ := it.Values[f].(string)
	return s
}

// MarshalJSON flattens the item into {"source": ..., <field>: <value>...}
// with fields in sorted order so output is stable.
func (it Item) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(it.Values))
	for k := range it.Values {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteString(`{"source":`)
	src, err := json.Marshal(it.Source)
	if err != nil {
		return nil, err
	}
	buf.Write(src)
	for _, k := range keys {
		key, _ := json.Marshal(k)
		val, err := json.Marshal(it.Values[FieldName(k)])
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the flat form produced by MarshalJSON.
func (it *Item) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*it = Item{Values: make(map[FieldName]any, len(raw))}
	for k, v := range raw {
		if k == sourceKey {
			if err := json.Unmarshal(v, &it.Source); err != nil {
				return err
			}
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		it.Values[FieldName(k)] = val
	}
	return nil
}

// itemBuilder collects only non-empty values.
type itemBuilder struct {
	it Item
}

func newItem(src SourceKind) *itemBuilder {
	return &itemBuilder{it: Item{Source: src, Values: make(map[FieldName]any)}}
}

func (b *itemBuilder) str(f FieldName, v string) *itemBuilder {
	if v != "" {
		b.it.Values[f] = v
	}
	return b
}

func (b *itemBuilder) list(f FieldName, v []string) *itemBuilder {
	if len(v) > 0 {
		b.it.Values[f] = v
	}
	return b
}

// ChatMessage is a message from chat history.
type ChatMessage struct {
	Channel     string
	Author      string
	Text        string
	TextPreview string
	Date        string
	ThreadInfo  string
	Links       []string
}

func (m ChatMessage) Item() Item {
	return newItem(SourceSlack).
		str(FieldChannel, m.Channel).
		str(FieldAuthor, m.Author).
		str(FieldText, m.Text).
		str(FieldTextPreview, m.TextPreview).
		str(FieldDate, m.Date).
		str(FieldThreadInfo, m.ThreadInfo).
		list(FieldLinks, m.Links).it
}

// MailMessage is the lightweight metadata of one mailbox message.
type MailMessage struct {
	Author      string
	Subject     string
	Date        string
	TextPreview string
	Unread      bool
}

func (m MailMessage) Item() Item {
	b := newItem(SourceGmail).
		str(FieldAuthor, m.Author).
		str(FieldSubject, m.Subject).
		str(FieldDate, m.Date).
		str(FieldTextPreview, m.TextPreview)
	b.it.Values[FieldUnread] = m.Unread
	return b.it
}

// CalendarEvent is one calendar event starting in the window.
type CalendarEvent struct {
	Subject   string
	Date      string
	EndDate   string
	Attendees string
	Status    string
	Links     []string
}

func (e CalendarEvent) Item() Item {
	return newItem(SourceCalendar).
		str(FieldSubject, e.Subject).
		str(FieldDate, e.Date).
		str(FieldEndDate, e.EndDate).
		str(FieldAttendees, e.Attendees).
		str(FieldStatus, e.Status).
		list(FieldLinks, e.Links).it
}

// Task is one task-tracker task.
type Task struct {
	Subject     string
	Status      string
	Assignee    string
	DueDate     string
	TextPreview string
	Links       []string
}

func (t Task) Item() Item {
	return newItem(SourceClickUp).
		str(FieldSubject, t.Subject).
		str(FieldStatus, t.Status).
		str(FieldAssignee, t.Assignee).
		str(FieldDueDate, t.DueDate).
		str(FieldTextPreview, t.TextPreview).
		list(FieldLinks, t.Links).it
}
