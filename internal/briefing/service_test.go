package briefing

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/DariyDar/astra/internal/model"
	"github.com/DariyDar/astra/internal/period"
)

// recorder captures the query each source receives.
type recorder struct {
	q  model.Query
	iv period.Interval
}

func (r *recorder) Fetch(_ context.Context, q model.Query, iv period.Interval, _ string) ([]model.Item, error) {
	r.q, r.iv = q, iv
	return nil, nil
}

func recordingService() (*Service, map[model.SourceKind]*recorder) {
	recs := map[model.SourceKind]*recorder{}
	fetchers := map[model.SourceKind]Fetcher{}
	for _, src := range model.AllSources {
		r := &recorder{}
		recs[src] = r
		fetchers[src] = r
	}
	return NewService(newTestEngine(fetchers, &tokenSpy{token: "tok"}), nil), recs
}

func TestBriefingDefaults(t *testing.T) {
	svc, recs := recordingService()
	out := svc.Briefing(context.Background(), BriefingRequest{})
	if !out.OK() {
		t.Fatalf("Briefing failed: %s", out.Err)
	}
	if !reflect.DeepEqual(out.Result.Meta.SourcesQueried, DefaultSources) {
		t.Fatalf("sources = %v", out.Result.Meta.SourcesQueried)
	}
	if recs[model.SourceClickUp].q.Sources != nil {
		t.Fatal("clickup queried by default")
	}
	q := recs[model.SourceSlack].q
	if q.Type != model.QueryRecent || q.Period != "today" || q.LimitPerSource != DefaultLimit {
		t.Fatalf("query = %+v", q)
	}
	wantAfter := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	if !recs[model.SourceSlack].iv.After.Equal(wantAfter) {
		t.Fatalf("after = %s", recs[model.SourceSlack].iv.After)
	}
}

func TestBriefingClampsLimit(t *testing.T) {
	svc, recs := recordingService()
	for _, tc := range []struct{ in, want int }{{0, 1}, {-4, 1}, {7, 7}, {99, 50}} {
		n := tc.in
		out := svc.Briefing(context.Background(), BriefingRequest{Sources: []string{"clickup"}, LimitPerSource: &n})
		if !out.OK() {
			t.Fatalf("limit %d: %s", tc.in, out.Err)
		}
		if got := recs[model.SourceClickUp].q.LimitPerSource; got != tc.want {
			t.Errorf("limit %d clamped to %d; want %d", tc.in, got, tc.want)
		}
	}
}

func TestBriefingUnknownSourceIsTopLevelError(t *testing.T) {
	svc, recs := recordingService()
	out := svc.Briefing(context.Background(), BriefingRequest{Sources: []string{"slack", "unknown_source"}})
	if out.OK() {
		t.Fatal("expected error")
	}
	if !strings.Contains(out.Err, "unknown_source") {
		t.Fatalf("error %q should name the source", out.Err)
	}
	if recs[model.SourceSlack].q.Sources != nil {
		t.Fatal("slack ran for a rejected query")
	}

	raw, err := json.Marshal(out)
	if err != nil {
		t.Fatal(err)
	}
	var top map[string]any
	if err := json.Unmarshal(raw, &top); err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top["error"] == nil {
		t.Fatalf("payload = %s", raw)
	}
}

func TestSearchEverywhereDefaults(t *testing.T) {
	svc, recs := recordingService()
	out := svc.SearchEverywhere(context.Background(), SearchRequest{SearchTerm: "budget"})
	if !out.OK() {
		t.Fatalf("SearchEverywhere failed: %s", out.Err)
	}
	if !reflect.DeepEqual(out.Result.Meta.SourcesQueried, model.AllSources) {
		t.Fatalf("sources = %v", out.Result.Meta.SourcesQueried)
	}
	q := recs[model.SourceGmail].q
	if q.Type != model.QuerySearch || q.Period != "last_month" || q.LimitPerSource != DefaultSearchLimit {
		t.Fatalf("query = %+v", q)
	}
	if !reflect.DeepEqual(q.Fields, SearchFields) {
		t.Fatalf("fields = %v", q.Fields)
	}
}

func TestSearchEverywhereRequiresTerm(t *testing.T) {
	svc, recs := recordingService()
	out := svc.SearchEverywhere(context.Background(), SearchRequest{})
	if out.OK() || !strings.Contains(out.Err, "search_term") {
		t.Fatalf("outcome = %+v", out)
	}
	for src, r := range recs {
		if r.q.Sources != nil {
			t.Fatalf("%s ran", src)
		}
	}
}

func TestOutcomeJSON(t *testing.T) {
	raw, _ := json.Marshal(Outcome{Err: "boom"})
	if string(raw) != `{"error":"boom"}` {
		t.Fatalf("error outcome = %s", raw)
	}
	res := &model.AggregateResult{
		Results: map[model.SourceKind]model.SourceResult{model.SourceSlack: {}},
		Meta:    model.Meta{SourcesQueried: []model.SourceKind{model.SourceSlack}, SourcesOK: []model.SourceKind{model.SourceSlack}, SourcesFailed: []model.SourceKind{}},
	}
	raw, _ = json.Marshal(Outcome{Result: res})
	if !strings.Contains(string(raw), `"results":{"slack":[]}`) {
		t.Fatalf("result outcome = %s", raw)
	}
}
