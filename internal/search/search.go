// Package search finds an owner's daily and weekly reports by text.
package search

import "workreport/api/internal/store"

// ResultType identifies the kind of report in a search result.
type ResultType string

const (
	ResultDaily  ResultType = "daily"
	ResultWeekly ResultType = "weekly"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	Date    string     `json:"date"`
}

// Query describes a search request. Owner is mandatory.
type Query struct {
	Owner      store.OwnerID
	Text       string
	FilterType ResultType // empty = both kinds
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Record is what gets indexed for one report.
type Record struct {
	ID      string     `json:"id"`
	OwnerID string     `json:"ownerId"`
	Type    ResultType `json:"type"`
	Title   string     `json:"title"`
	Body    string     `json:"body"`
	Date    string     `json:"date"`
}

// DailyRecord builds the index record of a daily report. Its summary
// doubles as the title.
func DailyRecord(r store.Report) Record {
	return Record{ID: r.ID, OwnerID: string(r.OwnerID), Type: ResultDaily, Title: r.Summary, Body: r.RenderedText, Date: r.Date}
}

// WeeklyRecord builds the index record of a weekly report.
func WeeklyRecord(w store.WeeklyReport) Record {
	return Record{ID: w.ID, OwnerID: string(w.OwnerID), Type: ResultWeekly, Title: w.Title, Body: w.RenderedText, Date: w.WeekStart}
}

func normalizeLimit(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
