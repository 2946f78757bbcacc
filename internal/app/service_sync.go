package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"workreport/api/internal/metrics"
	"workreport/api/internal/notion"
	"workreport/api/internal/report"
	"workreport/api/internal/session"
	"workreport/api/internal/store"
)

// SyncOutcome is returned by both sync operations.
type SyncOutcome struct {
	Status store.SyncStatus `json:"syncStatus"`
	Target notion.Kind      `json:"targetType,omitempty"`
	PageID string           `json:"externalId,omitempty"`
	URL    string           `json:"externalUrl,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// syncJob is the entity-specific half of a sync.
type syncJob struct {
	entity string
	id     string
	begin  func(ctx context.Context) (bool, error)
	doc    func(ctx context.Context) (notion.Document, error)
	finish func(ctx context.Context, result store.SyncResult) (bool, error)
}

func (s *Service) SyncReport(ctx context.Context, owner store.OwnerID, reportID string) (SyncOutcome, error) {
	if _, err := s.GetReport(ctx, owner, reportID); err != nil {
		return SyncOutcome{}, err
	}
	return s.sync(ctx, owner, syncJob{
		entity: "daily",
		id:     reportID,
		begin: func(ctx context.Context) (bool, error) {
			return s.store.BeginReportSync(ctx, owner, reportID)
		},
		doc: func(ctx context.Context) (notion.Document, error) {
			item, err := s.store.GetReport(ctx, owner, reportID)
			if err != nil {
				return notion.Document{}, err
			}
			return s.dailyDocument(item), nil
		},
		finish: func(ctx context.Context, result store.SyncResult) (bool, error) {
			return s.store.UpdateReportSync(ctx, owner, reportID, result)
		},
	})
}

func (s *Service) SyncWeekly(ctx context.Context, owner store.OwnerID, weeklyID string) (SyncOutcome, error) {
	if _, err := s.GetWeekly(ctx, owner, weeklyID); err != nil {
		return SyncOutcome{}, err
	}
	return s.sync(ctx, owner, syncJob{
		entity: "weekly",
		id:     weeklyID,
		begin: func(ctx context.Context) (bool, error) {
			return s.store.BeginWeeklySync(ctx, owner, weeklyID)
		},
		doc: func(ctx context.Context) (notion.Document, error) {
			item, err := s.store.GetWeeklyReport(ctx, owner, weeklyID)
			if err != nil {
				return notion.Document{}, err
			}
			return s.weeklyDocument(item), nil
		},
		finish: func(ctx context.Context, result store.SyncResult) (bool, error) {
			return s.store.UpdateWeeklySync(ctx, owner, weeklyID, result)
		},
	})
}

// sync runs one guarded attempt. Concurrent calls for the same record in
// this process share one attempt; across processes the lock turns the loser
// away with SYNC_IN_PROGRESS.
func (s *Service) sync(ctx context.Context, owner store.OwnerID, job syncJob) (SyncOutcome, error) {
	user, err := s.store.GetUserByID(ctx, string(owner))
	if err != nil {
		return SyncOutcome{}, mapStoreError(err)
	}
	target := strings.TrimSpace(user.NotionTargetID)
	if target == "" {
		return SyncOutcome{}, notionTargetMissingError()
	}
	if !s.notion.Configured() {
		return SyncOutcome{}, notionNotConfiguredError()
	}

	key := fmt.Sprintf("sync:%s:%s:%s", job.entity, owner, job.id)
	// The attempt is shared by every joined caller, so none of them may cancel it.
	attemptCtx := context.WithoutCancel(ctx)
	value, err, _ := s.syncGroup.Do(key, func() (any, error) {
		release, err := s.locker.Acquire(attemptCtx, key)
		if err != nil {
			if errors.Is(err, session.ErrLocked) {
				return SyncOutcome{}, domainError(http.StatusConflict, "SYNC_IN_PROGRESS", "a sync of this report is already running", nil)
			}
			return SyncOutcome{}, err
		}
		defer release()
		return s.runSync(attemptCtx, target, job)
	})
	if err != nil {
		return SyncOutcome{}, err
	}
	return value.(SyncOutcome), nil
}

func (s *Service) runSync(ctx context.Context, target string, job syncJob) (SyncOutcome, error) {
	exists, err := job.begin(ctx)
	if err != nil {
		return SyncOutcome{}, err
	}
	if !exists {
		return SyncOutcome{}, notFoundError()
	}
	doc, err := job.doc(ctx)
	if err != nil {
		s.abandonSync(ctx, job, err)
		return SyncOutcome{}, mapStoreError(err)
	}

	result, err := s.notion.Sync(ctx, target, doc)
	if err != nil {
		s.abandonSync(ctx, job, err)
		if errors.Is(err, notion.ErrMissingToken) {
			return SyncOutcome{}, notionNotConfiguredError()
		}
		return SyncOutcome{}, err
	}

	outcome := SyncOutcome{Target: result.Kind, Error: result.Error}
	update := store.SyncResult{Status: store.SyncFailed}
	if result.Success {
		outcome.Status = store.SyncSynced
		outcome.PageID = result.PageID
		outcome.URL = result.URL
		update = store.SyncResult{Status: store.SyncSynced, ExternalID: result.PageID, ExternalURL: result.URL}
	} else {
		outcome.Status = store.SyncFailed
	}

	if _, err := job.finish(ctx, update); err != nil {
		s.logger.Error("record sync outcome", zap.String("entity", job.entity), zap.String("id", job.id), zap.Error(err))
		return SyncOutcome{}, err
	}
	metrics.RecordNotionSync(job.entity, string(result.Kind), string(outcome.Status))
	s.logger.Info("notion sync finished",
		zap.String("entity", job.entity),
		zap.String("id", job.id),
		zap.String("target", string(result.Kind)),
		zap.String("status", string(outcome.Status)),
	)
	return outcome, nil
}

// abandonSync moves a record that begin set to pending over to failed.
func (s *Service) abandonSync(ctx context.Context, job syncJob, cause error) {
	if _, err := job.finish(ctx, store.SyncResult{Status: store.SyncFailed}); err != nil {
		s.logger.Error("record abandoned sync", zap.String("entity", job.entity), zap.String("id", job.id), zap.Error(err))
		return
	}
	s.logger.Warn("notion sync abandoned", zap.String("entity", job.entity), zap.String("id", job.id), zap.Error(cause))
}

func (s *Service) dailyDocument(item store.Report) notion.Document {
	return notion.Document{
		Title:       s.locale.DailyTitleFor(item.Date),
		Heading:     fmt.Sprintf(s.locale.DailyHeading, item.Date),
		Sections:    notionSections(report.DailySections(item.ReportFields, s.locale)),
		Placeholder: s.locale.Placeholder,
	}
}

func (s *Service) weeklyDocument(item store.WeeklyReport) notion.Document {
	return notion.Document{
		Title:       item.Title,
		Heading:     "📅 " + item.Title,
		Sections:    notionSections(report.WeeklySections(item.WeeklyFields, s.locale)),
		Placeholder: s.locale.Placeholder,
	}
}

func notionSections(sections []report.Section) []notion.Section {
	out := make([]notion.Section, 0, len(sections))
	for _, section := range sections {
		out = append(out, notion.Section{Heading: section.Heading, Body: section.Body})
	}
	return out
}
