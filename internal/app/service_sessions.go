package app

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"workreport/api/internal/archive"
	"workreport/api/internal/report"
	"workreport/api/internal/store"
	"workreport/api/internal/util"
)

// CreateSession opens an interview for date (today when blank) seeded with
// the welcome turn.
func (s *Service) CreateSession(ctx context.Context, owner store.OwnerID, date string) (store.Session, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		date = s.today()
	}
	if !validDate(date) {
		return store.Session{}, validationError("date must be YYYY-MM-DD")
	}

	now := s.now().UTC()
	item := store.Session{
		ID:         util.NewID("ses"),
		OwnerID:    owner,
		Title:      s.locale.SessionTitleFor(date),
		Status:     store.SessionActive,
		ReportDate: date,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	welcome := store.Turn{SessionID: item.ID, Role: store.RoleAssistant, Content: s.locale.Welcome, CreatedAt: now}
	if err := s.store.CreateSession(ctx, item, welcome); err != nil {
		return store.Session{}, err
	}
	item.Turns = []store.Turn{welcome}
	return item, nil
}

func (s *Service) ListSessions(ctx context.Context, owner store.OwnerID, limit int) ([]store.Session, error) {
	return s.store.ListSessions(ctx, owner, store.ListOptions{OrderBy: "updatedAt", Limit: limit})
}

func (s *Service) GetSession(ctx context.Context, owner store.OwnerID, sessionID string) (store.Session, error) {
	item, err := s.store.GetSession(ctx, owner, sessionID)
	if err != nil {
		return store.Session{}, mapStoreError(err)
	}
	return item, nil
}

// MessageResult is the interviewer's answer to one user message.
type MessageResult struct {
	Reply store.Turn `json:"reply"`
	Ready bool       `json:"readyToGenerate"`
}

// PostMessage sends the user's message with the full history to the
// interviewer. Both turns are stored only once the reply exists.
func (s *Service) PostMessage(ctx context.Context, owner store.OwnerID, sessionID, content, audioKey string) (MessageResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return MessageResult{}, validationError("content is required")
	}
	item, err := s.store.GetSession(ctx, owner, sessionID)
	if err != nil {
		return MessageResult{}, mapStoreError(err)
	}
	if item.Status != store.SessionActive {
		return MessageResult{}, sessionClosedError()
	}

	now := s.now().UTC()
	userTurn := store.Turn{SessionID: sessionID, Role: store.RoleUser, Content: content, AudioKey: strings.TrimSpace(audioKey), CreatedAt: now}
	history := append(append([]store.Turn{}, item.Turns...), userTurn)

	reply, err := s.synth.Interview(ctx, history)
	if err != nil {
		s.logger.Warn("interview turn failed", zap.String("session_id", sessionID), zap.Error(err))
		return MessageResult{}, llmError(err)
	}
	assistantTurn := store.Turn{SessionID: sessionID, Role: store.RoleAssistant, Content: reply.Text, CreatedAt: s.now().UTC()}
	if err := s.store.AppendTurns(ctx, owner, sessionID, userTurn, assistantTurn); err != nil {
		return MessageResult{}, mapStoreError(err)
	}
	return MessageResult{Reply: assistantTurn, Ready: reply.Ready}, nil
}

// UpdateSessionStatus archives or reopens a session. Completed sessions can
// only be archived; completion itself happens through GenerateReport.
func (s *Service) UpdateSessionStatus(ctx context.Context, owner store.OwnerID, sessionID string, status store.SessionStatus) (store.Session, error) {
	if status != store.SessionActive && status != store.SessionArchived {
		return store.Session{}, validationError("status must be active or archived")
	}
	item, err := s.store.GetSession(ctx, owner, sessionID)
	if err != nil {
		return store.Session{}, mapStoreError(err)
	}
	if item.Status == store.SessionCompleted && status == store.SessionActive {
		return store.Session{}, sessionClosedError()
	}
	ok, err := s.store.UpdateSessionStatus(ctx, owner, sessionID, status)
	if err != nil {
		return store.Session{}, err
	}
	if !ok {
		return store.Session{}, notFoundError()
	}
	item.Status = status
	return item, nil
}

// GenerateReport extracts the structured report from an active session and
// persists it with the session marked completed. A failed extraction leaves
// the session untouched.
func (s *Service) GenerateReport(ctx context.Context, owner store.OwnerID, sessionID string) (store.Report, error) {
	item, err := s.store.GetSession(ctx, owner, sessionID)
	if err != nil {
		return store.Report{}, mapStoreError(err)
	}
	if item.Status != store.SessionActive {
		return store.Report{}, sessionClosedError()
	}
	if !hasUserTurn(item.Turns) {
		return store.Report{}, domainError(http.StatusUnprocessableEntity, "EMPTY_SESSION", "the session has no user messages", nil)
	}

	fields, err := s.synth.Extract(ctx, item.Turns)
	if err != nil {
		s.logger.Warn("report generation failed", zap.String("session_id", sessionID), zap.Error(err))
		return store.Report{}, llmError(err)
	}

	now := s.now().UTC()
	generated := store.Report{
		ID:           util.NewID("rpt"),
		OwnerID:      owner,
		SessionID:    sessionID,
		Date:         item.ReportDate,
		ReportFields: fields,
		RenderedText: report.RenderDaily(item.ReportDate, fields, s.locale),
		SyncState:    store.SyncState{SyncStatus: store.SyncPending},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CompleteSession(ctx, owner, s.locale.CompletedTitleFor(fields.Summary), generated); err != nil {
		return store.Report{}, mapStoreError(err)
	}
	s.logger.Info("daily report generated",
		zap.String("report_id", generated.ID),
		zap.String("session_id", sessionID),
		zap.String("date", generated.Date),
	)
	s.dailySaved(owner, generated, "Generate daily report")
	return generated, nil
}

func hasUserTurn(turns []store.Turn) bool {
	for _, turn := range turns {
		if turn.Role == store.RoleUser {
			return true
		}
	}
	return false
}

// dailySaved pushes a stored daily report to the search index and archive.
// Neither can fail the request.
func (s *Service) dailySaved(owner store.OwnerID, item store.Report, message string) {
	if s.search != nil {
		s.search.Index(searchDaily(item))
	}
	s.record(owner, archive.KindDaily, item.ID, item.RenderedText, message)
}

func (s *Service) record(owner store.OwnerID, kind archive.Kind, id, rendered, message string) {
	if s.archive == nil {
		return
	}
	if _, err := s.archive.Record(owner, kind, id, rendered, string(owner), message); err != nil {
		s.logger.Warn("archive report revision", zap.String("report_id", id), zap.Error(err))
	}
}
