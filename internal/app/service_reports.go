package app

import (
	"context"
	"errors"
	"strings"

	"workreport/api/internal/archive"
	"workreport/api/internal/export"
	"workreport/api/internal/report"
	"workreport/api/internal/search"
	"workreport/api/internal/store"
)

// ReportPatch holds optional daily report edits; nil fields keep their value.
type ReportPatch struct {
	WorkContent      *string `json:"workContent"`
	CompletionStatus *string `json:"completionStatus"`
	Problems         *string `json:"problems"`
	TomorrowPlan     *string `json:"tomorrowPlan"`
	BusinessInsights *string `json:"businessInsights"`
	Summary          *string `json:"summary"`
}

func (p ReportPatch) apply(fields store.ReportFields) store.ReportFields {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&fields.WorkContent, p.WorkContent)
	set(&fields.CompletionStatus, p.CompletionStatus)
	set(&fields.Problems, p.Problems)
	set(&fields.TomorrowPlan, p.TomorrowPlan)
	set(&fields.BusinessInsights, p.BusinessInsights)
	set(&fields.Summary, p.Summary)
	return fields
}

// ListReports returns the owner's daily reports, newest report date first.
func (s *Service) ListReports(ctx context.Context, owner store.OwnerID, limit int) ([]store.Report, error) {
	return s.store.ListReports(ctx, owner, store.ListOptions{OrderBy: "date", Limit: limit})
}

func (s *Service) GetReport(ctx context.Context, owner store.OwnerID, reportID string) (store.Report, error) {
	item, err := s.store.GetReport(ctx, owner, reportID)
	if err != nil {
		return store.Report{}, mapStoreError(err)
	}
	return item, nil
}

// UpdateReport merges the patch and re-renders the full text from the merged
// fields. Sync status is not touched.
func (s *Service) UpdateReport(ctx context.Context, owner store.OwnerID, reportID string, patch ReportPatch) (store.Report, error) {
	current, err := s.store.GetReport(ctx, owner, reportID)
	if err != nil {
		return store.Report{}, mapStoreError(err)
	}
	fields := patch.apply(current.ReportFields)
	updated, err := s.store.UpdateReport(ctx, owner, reportID, fields, report.RenderDaily(current.Date, fields, s.locale))
	if err != nil {
		return store.Report{}, mapStoreError(err)
	}
	s.dailySaved(owner, updated, "Update daily report")
	return updated, nil
}

func (s *Service) DeleteReport(ctx context.Context, owner store.OwnerID, reportID string) error {
	ok, err := s.store.DeleteReport(ctx, owner, reportID)
	if err != nil {
		return err
	}
	if !ok {
		return notFoundError()
	}
	if s.search != nil {
		s.search.Delete(reportID)
	}
	return nil
}

// ReportHistory lists archived revisions of a daily report, newest first.
func (s *Service) ReportHistory(ctx context.Context, owner store.OwnerID, reportID string, limit int) ([]archive.Revision, error) {
	if _, err := s.GetReport(ctx, owner, reportID); err != nil {
		return nil, err
	}
	return s.history(owner, archive.KindDaily, reportID, limit)
}

func (s *Service) history(owner store.OwnerID, kind archive.Kind, id string, limit int) ([]archive.Revision, error) {
	if s.archive == nil {
		return nil, unavailableError("Archive")
	}
	revisions, err := s.archive.History(owner, kind, id, limit)
	if errors.Is(err, archive.ErrNoHistory) {
		return []archive.Revision{}, nil
	}
	return revisions, err
}

func (s *Service) ExportReport(ctx context.Context, owner store.OwnerID, reportID string, format export.Format) (*export.Result, error) {
	item, err := s.GetReport(ctx, owner, reportID)
	if err != nil {
		return nil, err
	}
	return s.export(ctx, export.Document{
		Title:    s.locale.DailyTitleFor(item.Date),
		Subtitle: item.Date,
		Sections: exportSections(report.DailySections(item.ReportFields, s.locale)),
		Markdown: item.RenderedText,
	}, format)
}

func (s *Service) export(ctx context.Context, doc export.Document, format export.Format) (*export.Result, error) {
	if s.exporter == nil {
		return nil, unavailableError("Export")
	}
	result, err := s.exporter.Export(ctx, doc, format)
	switch {
	case errors.Is(err, export.ErrUnsupportedFormat):
		return nil, validationError("format must be md, pdf or docx")
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return nil, unavailableError("Export " + string(format))
	}
	return result, err
}

func exportSections(sections []report.Section) []export.Section {
	out := make([]export.Section, 0, len(sections))
	for _, section := range sections {
		out = append(out, export.Section{Heading: section.Heading, Body: section.Body})
	}
	return out
}

// Search looks through the owner's daily and weekly reports.
func (s *Service) Search(ctx context.Context, owner store.OwnerID, text string, filterType string, limit, offset int) (search.Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return search.Response{Results: []search.Result{}}, nil
	}
	resultType := search.ResultType(strings.ToLower(strings.TrimSpace(filterType)))
	if resultType != "" && resultType != search.ResultDaily && resultType != search.ResultWeekly {
		return search.Response{}, validationError("type must be daily or weekly")
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(search.Query{Owner: owner, Text: text, FilterType: resultType, Limit: limit, Offset: offset}), nil
}

func searchDaily(item store.Report) search.Record {
	return search.DailyRecord(item)
}

func searchWeekly(item store.WeeklyReport) search.Record {
	return search.WeeklyRecord(item)
}
