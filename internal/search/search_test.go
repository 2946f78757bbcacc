package search

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"workreport/api/internal/store"
)

type fakeIndex struct {
	mu      sync.Mutex
	healthy bool
	err     error
	results []Result
	queries []Query
	indexed []Record
	deleted []string
}

func (f *fakeIndex) Search(q Query) ([]Result, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.results, len(f.results), f.err
}

func (f *fakeIndex) Healthy() bool { return f.healthy }

func (f *fakeIndex) Index(records ...Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, records...)
	return nil
}

func (f *fakeIndex) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func newTestService(primary indexer, fallback Searcher) *Service {
	return &Service{meili: primary, pgfts: fallback, logger: zap.NewNop()}
}

func TestSearchPrefersHealthyMeili(t *testing.T) {
	primary := &fakeIndex{healthy: true, results: []Result{{ID: "rpt_1", Type: ResultDaily}}}
	fallback := &fakeIndex{healthy: true, results: []Result{{ID: "pg"}}}
	svc := newTestService(primary, fallback)

	resp := svc.Search(Query{Owner: "usr_1", Text: "接口"})
	if len(resp.Results) != 1 || resp.Results[0].ID != "rpt_1" {
		t.Fatalf("unexpected results %#v", resp.Results)
	}
	if len(fallback.queries) != 0 {
		t.Fatal("fallback should not be queried when meili answers")
	}
}

func TestSearchFallsBackOnMeiliError(t *testing.T) {
	primary := &fakeIndex{healthy: true, err: errors.New("timeout")}
	fallback := &fakeIndex{healthy: true, results: []Result{{ID: "pg"}}}
	svc := newTestService(primary, fallback)

	resp := svc.Search(Query{Owner: "usr_1", Text: "bug"})
	if len(resp.Results) != 1 || resp.Results[0].ID != "pg" || resp.Query != "bug" {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestSearchNeverReturnsNilResults(t *testing.T) {
	svc := newTestService(nil, &fakeIndex{err: errors.New("db down")})
	resp := svc.Search(Query{Owner: "usr_1", Text: "x"})
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Fatalf("expected empty non-nil results, got %#v", resp.Results)
	}
}

func TestOwnerFilterIsAlwaysApplied(t *testing.T) {
	filters := ownerFilter(Query{Owner: `usr_"1`, FilterType: ResultWeekly})
	if len(filters) != 2 || filters[0] != `ownerId = "usr_\"1"` || filters[1] != `type = "weekly"` {
		t.Fatalf("unexpected filters %#v", filters)
	}
}

func TestBuildPgQueryScopesByOwner(t *testing.T) {
	sqlText, args := buildPgQuery(Query{Owner: "usr_1", Text: "周报"})
	if strings.Count(sqlText, "owner_id = $1") != 2 {
		t.Fatalf("every branch must filter by owner: %s", sqlText)
	}
	if len(args) != 2 || args[0] != "usr_1" || args[1] != "周报" {
		t.Fatalf("unexpected args %#v", args)
	}

	dailyOnly, _ := buildPgQuery(Query{Owner: "usr_1", Text: "x", FilterType: ResultDaily})
	if strings.Contains(dailyOnly, "weekly_reports") {
		t.Fatalf("daily filter should skip weekly reports: %s", dailyOnly)
	}
}

func TestRecords(t *testing.T) {
	daily := DailyRecord(store.Report{ID: "rpt_1", OwnerID: "usr_1", Date: "2025-01-06", ReportFields: store.ReportFields{Summary: "s"}, RenderedText: "body"})
	if daily.Type != ResultDaily || daily.Title != "s" || daily.OwnerID != "usr_1" {
		t.Fatalf("unexpected daily record %#v", daily)
	}
	weekly := WeeklyRecord(store.WeeklyReport{ID: "wkr_1", OwnerID: "usr_1", Title: "t", WeekStart: "2025-01-06"})
	if weekly.Type != ResultWeekly || weekly.Date != "2025-01-06" {
		t.Fatalf("unexpected weekly record %#v", weekly)
	}
}
