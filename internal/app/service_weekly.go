package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"workreport/api/internal/archive"
	"workreport/api/internal/export"
	"workreport/api/internal/report"
	"workreport/api/internal/store"
)

// WeeklyRequest selects the daily reports and OKR period a weekly report is
// built from.
type WeeklyRequest struct {
	WeekStart string   `json:"weekStart"`
	WeekEnd   string   `json:"weekEnd"`
	PeriodID  string   `json:"periodId"`
	ReportIDs []string `json:"reportIds"`
}

// WeeklyPatch holds optional weekly report edits; nil fields keep their value.
type WeeklyPatch struct {
	Title        *string              `json:"title"`
	Summary      *string              `json:"summary"`
	OkrProgress  *[]store.OkrProgress `json:"okrProgress"`
	Achievements *[]string            `json:"achievements"`
	Problems     *string              `json:"problems"`
	NextWeekPlan *string              `json:"nextWeekPlan"`
}

func (p WeeklyPatch) apply(title string, fields store.WeeklyFields) (string, store.WeeklyFields) {
	if p.Title != nil && strings.TrimSpace(*p.Title) != "" {
		title = strings.TrimSpace(*p.Title)
	}
	if p.Summary != nil {
		fields.Summary = *p.Summary
	}
	if p.OkrProgress != nil {
		fields.OkrProgress = append([]store.OkrProgress{}, (*p.OkrProgress)...)
	}
	if p.Achievements != nil {
		fields.Achievements = append([]string{}, (*p.Achievements)...)
	}
	if p.Problems != nil {
		fields.Problems = *p.Problems
	}
	if p.NextWeekPlan != nil {
		fields.NextWeekPlan = *p.NextWeekPlan
	}
	return title, fields
}

// weekOf returns the Monday and Sunday of the ISO week containing day.
func weekOf(day time.Time) (string, string) {
	offset := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -offset)
	return start.Format(dateLayout), start.AddDate(0, 0, 6).Format(dateLayout)
}

// GenerateWeekly folds daily reports into a stored weekly report. A blank
// range means the current week; no report ids means every daily report dated
// inside the range; no period means the period active on weekStart, if any.
func (s *Service) GenerateWeekly(ctx context.Context, owner store.OwnerID, req WeeklyRequest) (store.WeeklyReport, error) {
	req.WeekStart = strings.TrimSpace(req.WeekStart)
	req.WeekEnd = strings.TrimSpace(req.WeekEnd)
	if req.WeekStart == "" && req.WeekEnd == "" {
		req.WeekStart, req.WeekEnd = weekOf(s.now())
	}
	if !validDate(req.WeekStart) || !validDate(req.WeekEnd) {
		return store.WeeklyReport{}, validationError("weekStart and weekEnd must be YYYY-MM-DD")
	}
	if req.WeekStart > req.WeekEnd {
		return store.WeeklyReport{}, validationError("weekStart must not be after weekEnd")
	}

	ids := compactIDs(req.ReportIDs)
	if len(ids) == 0 {
		inRange, err := s.reportsInRange(ctx, owner, req.WeekStart, req.WeekEnd)
		if err != nil {
			return store.WeeklyReport{}, err
		}
		ids = inRange
	}
	if len(ids) == 0 {
		return store.WeeklyReport{}, validationError("no daily reports in the selected week")
	}

	periodID := strings.TrimSpace(req.PeriodID)
	if periodID == "" {
		period, err := s.store.GetActivePeriod(ctx, owner, req.WeekStart)
		switch {
		case err == nil:
			periodID = period.ID
		case !errors.Is(err, store.ErrNotFound):
			return store.WeeklyReport{}, err
		}
	} else if _, err := s.GetPeriod(ctx, owner, periodID); err != nil {
		return store.WeeklyReport{}, err
	}

	item, err := s.weekly.Aggregate(ctx, report.WeeklyInput{
		Owner:     owner,
		WeekStart: req.WeekStart,
		WeekEnd:   req.WeekEnd,
		PeriodID:  periodID,
		ReportIDs: ids,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.WeeklyReport{}, notFoundError()
		}
		s.logger.Warn("weekly generation failed", zap.String("owner", string(owner)), zap.Error(err))
		return store.WeeklyReport{}, llmError(err)
	}
	s.weeklySaved(owner, item, "Generate weekly report")
	return item, nil
}

func compactIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// reportsInRange returns ids of the owner's daily reports dated within
// [start, end], oldest first.
func (s *Service) reportsInRange(ctx context.Context, owner store.OwnerID, start, end string) ([]string, error) {
	items, err := s.store.ListReports(ctx, owner, store.ListOptions{OrderBy: "date", Ascending: true})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0)
	for _, item := range items {
		if item.Date >= start && item.Date <= end {
			ids = append(ids, item.ID)
		}
	}
	return ids, nil
}

func (s *Service) ListWeekly(ctx context.Context, owner store.OwnerID, limit int) ([]store.WeeklyReport, error) {
	return s.store.ListWeeklyReports(ctx, owner, store.ListOptions{OrderBy: "weekStart", Limit: limit})
}

func (s *Service) GetWeekly(ctx context.Context, owner store.OwnerID, weeklyID string) (store.WeeklyReport, error) {
	item, err := s.store.GetWeeklyReport(ctx, owner, weeklyID)
	if err != nil {
		return store.WeeklyReport{}, mapStoreError(err)
	}
	return item, nil
}

// UpdateWeekly merges the patch and re-renders the text. Sync status is not
// touched.
func (s *Service) UpdateWeekly(ctx context.Context, owner store.OwnerID, weeklyID string, patch WeeklyPatch) (store.WeeklyReport, error) {
	current, err := s.GetWeekly(ctx, owner, weeklyID)
	if err != nil {
		return store.WeeklyReport{}, err
	}
	title, fields := patch.apply(current.Title, current.WeeklyFields)
	updated, err := s.store.UpdateWeeklyReport(ctx, owner, weeklyID, title, fields, report.RenderWeekly(title, fields, s.locale))
	if err != nil {
		return store.WeeklyReport{}, mapStoreError(err)
	}
	s.weeklySaved(owner, updated, "Update weekly report")
	return updated, nil
}

func (s *Service) DeleteWeekly(ctx context.Context, owner store.OwnerID, weeklyID string) error {
	if err := found(s.store.DeleteWeeklyReport(ctx, owner, weeklyID)); err != nil {
		return err
	}
	if s.search != nil {
		s.search.Delete(weeklyID)
	}
	return nil
}

func (s *Service) WeeklyHistory(ctx context.Context, owner store.OwnerID, weeklyID string, limit int) ([]archive.Revision, error) {
	if _, err := s.GetWeekly(ctx, owner, weeklyID); err != nil {
		return nil, err
	}
	return s.history(owner, archive.KindWeekly, weeklyID, limit)
}

func (s *Service) ExportWeekly(ctx context.Context, owner store.OwnerID, weeklyID string, format export.Format) (*export.Result, error) {
	item, err := s.GetWeekly(ctx, owner, weeklyID)
	if err != nil {
		return nil, err
	}
	return s.export(ctx, export.Document{
		Title:    item.Title,
		Subtitle: item.WeekStart + " ~ " + item.WeekEnd,
		Sections: exportSections(report.WeeklySections(item.WeeklyFields, s.locale)),
		Markdown: item.RenderedText,
	}, format)
}

func (s *Service) weeklySaved(owner store.OwnerID, item store.WeeklyReport, message string) {
	if s.search != nil {
		s.search.Index(searchWeekly(item))
	}
	s.record(owner, archive.KindWeekly, item.ID, item.RenderedText, message)
}
