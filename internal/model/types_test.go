package model

import (
	"encoding/json"
	"testing"
)

func TestItemMarshalFlat(t *testing.T) {
	it := MailMessage{Author: "Alice <a@example.com>", Subject: "Hi", Unread: true}.Item()
	b, err := json.Marshal(it)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"source":"gmail","author":"Alice <a@example.com>","is_unread":true,"subject":"Hi"}`
	if string(b) != want {
		t.Fatalf("got %s\nwant %s", b, want)
	}
}

func TestVariantsOmitEmptyFields(t *testing.T) {
	it := ChatMessage{Channel: "general", Text: "hello"}.Item()
	if _, ok := it.Get(FieldThreadInfo); ok {
		t.Fatal("empty thread_info should be absent")
	}
	if _, ok := it.Get(FieldLinks); ok {
		t.Fatal("empty links should be absent")
	}
	if it.String(FieldChannel) != "general" {
		t.Fatalf("channel = %q", it.String(FieldChannel))
	}
	if it.Source != SourceSlack {
		t.Fatalf("source = %q", it.Source)
	}
}

func TestSourceResultJSON(t *testing.T) {
	ok := SourceResult{}
	b, _ := json.Marshal(ok)
	if string(b) != "[]" {
		t.Fatalf("empty ok result = %s", b)
	}

	failed := SourceResult{Err: "boom"}
	b, _ = json.Marshal(failed)
	if string(b) != `{"error":"boom"}` {
		t.Fatalf("failed result = %s", b)
	}

	var back SourceResult
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Failed() || back.Err != "boom" {
		t.Fatalf("round trip lost error: %+v", back)
	}
}

func TestSourceKindHelpers(t *testing.T) {
	tests := []struct {
		in     SourceKind
		valid  bool
		google bool
	}{
		{SourceSlack, true, false},
		{SourceGmail, true, true},
		{SourceCalendar, true, true},
		{SourceClickUp, true, false},
		{"unknown_source", false, false},
	}
	for _, tc := range tests {
		if got := tc.in.Valid(); got != tc.valid {
			t.Errorf("%q.Valid() = %v", tc.in, got)
		}
		if got := tc.in.UsesGoogleOAuth(); got != tc.google {
			t.Errorf("%q.UsesGoogleOAuth() = %v", tc.in, got)
		}
	}
}
