package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"workreport/api/internal/audio"
	"workreport/api/internal/auth"
	"workreport/api/internal/export"
	"workreport/api/internal/metrics"
	"workreport/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
			"notion":   map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
		// A missing Notion token is reported but does not make the service unready.
		if !s.service.NotionConfigured() {
			checks["notion"] = map[string]any{"status": "not_configured"}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		metrics.Handler().ServeHTTP(w, r)
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleAuthSignUp(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleAuthSignIn(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeBodyError(w, err)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		if err := s.service.Logout(r.Context(), body.RefreshToken); err != nil {
			s.logger.Warn("logout failed", zap.Error(err))
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	owner := session.Owner()

	if r.Method == http.MethodGet && r.URL.Path == "/api/me" {
		writeJSON(w, http.StatusOK, map[string]any{
			"userId":      session.UserID,
			"email":       session.Email,
			"displayName": session.DisplayName,
		})
		return
	}

	if r.URL.Path == "/api/settings/notion" {
		s.handleNotionSettings(w, r, owner)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/settings/notion/verify" {
		var body struct {
			TargetID string `json:"notionTargetId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeBodyError(w, err)
			return
		}
		payload, err := s.service.VerifyNotion(r.Context(), owner, body.TargetID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		query := r.URL.Query()
		limit, ok := queryInt(w, r, "limit", 20)
		if !ok {
			return
		}
		offset, ok := queryInt(w, r, "offset", 0)
		if !ok {
			return
		}
		payload, err := s.service.Search(r.Context(), owner, query.Get("q"), query.Get("type"), limit, offset)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "sessions":
		s.handleSessions(w, r, owner, parts[2:])
		return
	case "reports":
		s.handleReports(w, r, owner, parts[2:])
		return
	case "weekly":
		s.handleWeekly(w, r, owner, parts[2:])
		return
	case "okr":
		s.handleOKR(w, r, owner, parts[2:])
		return
	case "audio":
		s.handleAudio(w, r, owner, parts[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleNotionSettings(w http.ResponseWriter, r *http.Request, owner store.OwnerID) {
	if r.Method == http.MethodGet {
		payload, err := s.service.GetNotionSettings(r.Context(), owner)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodPut {
		var body struct {
			TargetID string `json:"notionTargetId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeBodyError(w, err)
			return
		}
		payload, err := s.service.UpdateNotionTarget(r.Context(), owner, body.TargetID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

// handleSessions serves /api/sessions[/{id}[/messages|/status|/generate]].
func (s *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request, owner store.OwnerID, parts []string) {
	if len(parts) == 0 {
		if r.Method == http.MethodGet {
			limit, ok := queryInt(w, r, "limit", 0)
			if !ok {
				return
			}
			items, err := s.service.ListSessions(r.Context(), owner, limit)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"sessions": items})
			return
		}
		if r.Method == http.MethodPost {
			var body struct {
				Date string `json:"date"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeBodyError(w, err)
				return
			}
			item, err := s.service.CreateSession(r.Context(), owner, body.Date)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, item)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	sessionID := parts[0]

	if len(parts) == 1 && r.Method == http.MethodGet {
		item, err := s.service.GetSession(r.Context(), owner, sessionID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
		return
	}

	if len(parts) == 2 && parts[1] == "messages" && r.Method == http.MethodPost {
		var body struct {
			Content  string `json:"content"`
			AudioKey string `json:"audioKey"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeBodyError(w, err)
			return
		}
		payload, err := s.service.PostMessage(r.Context(), owner, sessionID, body.Content, body.AudioKey)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 2 && parts[1] == "status" && r.Method == http.MethodPut {
		var body struct {
			Status store.SessionStatus `json:"status"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeBodyError(w, err)
			return
		}
		item, err := s.service.UpdateSessionStatus(r.Context(), owner, sessionID, body.Status)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
		return
	}

	if len(parts) == 2 && parts[1] == "generate" && r.Method == http.MethodPost {
		item, err := s.service.GenerateReport(r.Context(), owner, sessionID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, item)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handleReports serves /api/reports[/{id}[/sync|/history|/export]].
func (s *HTTPServer) handleReports(w http.ResponseWriter, r *http.Request, owner store.OwnerID, parts []string) {
	if len(parts) == 0 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		limit, ok := queryInt(w, r, "limit", 0)
		if !ok {
			return
		}
		items, err := s.service.ListReports(r.Context(), owner, limit)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reports": items})
		return
	}

	reportID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			item, err := s.service.GetReport(r.Context(), owner, reportID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, item)
		case http.MethodPut:
			var patch ReportPatch
			if err := decodeBody(r, &patch); err != nil {
				writeBodyError(w, err)
				return
			}
			item, err := s.service.UpdateReport(r.Context(), owner, reportID, patch)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, item)
		case http.MethodDelete:
			if err := s.service.DeleteReport(r.Context(), owner, reportID); err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 2 && parts[1] == "sync" && r.Method == http.MethodPost {
		payload, err := s.service.SyncReport(r.Context(), owner, reportID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 2 && parts[1] == "history" && r.Method == http.MethodGet {
		limit, ok := queryInt(w, r, "limit", 0)
		if !ok {
			return
		}
		items, err := s.service.ReportHistory(r.Context(), owner, reportID, limit)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"revisions": items})
		return
	}

	if len(parts) == 2 && parts[1] == "export" && r.Method == http.MethodGet {
		format, ok := exportFormat(w, r)
		if !ok {
			return
		}
		result, err := s.service.ExportReport(r.Context(), owner, reportID, format)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeFile(w, result)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handleWeekly serves /api/weekly[/{id}[/sync|/history|/export]].
func (s *HTTPServer) handleWeekly(w http.ResponseWriter, r *http.Request, owner store.OwnerID, parts []string) {
	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			limit, ok := queryInt(w, r, "limit", 0)
			if !ok {
				return
			}
			items, err := s.service.ListWeekly(r.Context(), owner, limit)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"weeklyReports": items})
		case http.MethodPost:
			var body WeeklyRequest
			if err := decodeBody(r, &body); err != nil {
				writeBodyError(w, err)
				return
			}
			item, err := s.service.GenerateWeekly(r.Context(), owner, body)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, item)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	weeklyID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			item, err := s.service.GetWeekly(r.Context(), owner, weeklyID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, item)
		case http.MethodPut:
			var patch WeeklyPatch
			if err := decodeBody(r, &patch); err != nil {
				writeBodyError(w, err)
				return
			}
			item, err := s.service.UpdateWeekly(r.Context(), owner, weeklyID, patch)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, item)
		case http.MethodDelete:
			if err := s.service.DeleteWeekly(r.Context(), owner, weeklyID); err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 2 && parts[1] == "sync" && r.Method == http.MethodPost {
		payload, err := s.service.SyncWeekly(r.Context(), owner, weeklyID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 2 && parts[1] == "history" && r.Method == http.MethodGet {
		limit, ok := queryInt(w, r, "limit", 0)
		if !ok {
			return
		}
		items, err := s.service.WeeklyHistory(r.Context(), owner, weeklyID, limit)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"revisions": items})
		return
	}

	if len(parts) == 2 && parts[1] == "export" && r.Method == http.MethodGet {
		format, ok := exportFormat(w, r)
		if !ok {
			return
		}
		result, err := s.service.ExportWeekly(r.Context(), owner, weeklyID, format)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeFile(w, result)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handleOKR serves /api/okr/periods..., /api/okr/objectives/... and
// /api/okr/key-results/....
func (s *HTTPServer) handleOKR(w http.ResponseWriter, r *http.Request, owner store.OwnerID, parts []string) {
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case parts[0] == "periods" && len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListPeriods(r.Context(), owner)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"periods": items})
		case http.MethodPost:
			var body PeriodInput
			if err := decodeBody(r, &body); err != nil {
				writeBodyError(w, err)
				return
			}
			item, err := s.service.CreatePeriod(r.Context(), owner, body)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, item)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return

	case parts[0] == "periods" && len(parts) == 2 && parts[1] == "active" && r.Method == http.MethodGet:
		item, found, err := s.service.ActivePeriod(r.Context(), owner)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if !found {
			writeJSON(w, http.StatusOK, map[string]any{"period": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"period": item})
		return

	case parts[0] == "periods" && len(parts) == 2:
		periodID := parts[1]
		switch r.Method {
		case http.MethodGet:
			item, err := s.service.GetPeriod(r.Context(), owner, periodID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, item)
		case http.MethodPut:
			var patch store.PeriodPatch
			if err := decodeBody(r, &patch); err != nil {
				writeBodyError(w, err)
				return
			}
			item, err := s.service.UpdatePeriod(r.Context(), owner, periodID, patch)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, item)
		case http.MethodDelete:
			if err := s.service.DeletePeriod(r.Context(), owner, periodID); err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return

	case parts[0] == "periods" && len(parts) == 3 && parts[2] == "tree" && r.Method == http.MethodGet:
		tree, err := s.service.OkrTree(r.Context(), owner, parts[1])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tree)
		return

	case parts[0] == "periods" && len(parts) == 3 && parts[2] == "objectives" && r.Method == http.MethodPost:
		var body ObjectiveInput
		if err := decodeBody(r, &body); err != nil {
			writeBodyError(w, err)
			return
		}
		item, err := s.service.CreateObjective(r.Context(), owner, parts[1], body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, item)
		return

	case parts[0] == "objectives" && len(parts) == 2:
		objectiveID := parts[1]
		switch r.Method {
		case http.MethodPut:
			var patch store.ObjectivePatch
			if err := decodeBody(r, &patch); err != nil {
				writeBodyError(w, err)
				return
			}
			if err := s.service.UpdateObjective(r.Context(), owner, objectiveID, patch); err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		case http.MethodDelete:
			if err := s.service.DeleteObjective(r.Context(), owner, objectiveID); err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return

	case parts[0] == "objectives" && len(parts) == 3 && parts[2] == "key-results" && r.Method == http.MethodPost:
		var body KeyResultInput
		if err := decodeBody(r, &body); err != nil {
			writeBodyError(w, err)
			return
		}
		item, err := s.service.CreateKeyResult(r.Context(), owner, parts[1], body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, item)
		return

	case parts[0] == "key-results" && len(parts) == 2:
		keyResultID := parts[1]
		switch r.Method {
		case http.MethodPut:
			var patch store.KeyResultPatch
			if err := decodeBody(r, &patch); err != nil {
				writeBodyError(w, err)
				return
			}
			if err := s.service.UpdateKeyResult(r.Context(), owner, keyResultID, patch); err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		case http.MethodDelete:
			if err := s.service.DeleteKeyResult(r.Context(), owner, keyResultID); err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handleAudio serves /api/audio, /api/audio/{id}/transcribe and
// /api/audio/{id}/url.
func (s *HTTPServer) handleAudio(w http.ResponseWriter, r *http.Request, owner store.OwnerID, parts []string) {
	if len(parts) == 0 && r.Method == http.MethodPost {
		var body AudioUpload
		if err := decodeBody(r, &body); err != nil {
			writeBodyError(w, err)
			return
		}
		item, err := s.service.UploadAudio(r.Context(), owner, body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, item)
		return
	}

	if len(parts) == 2 && parts[1] == "transcribe" && r.Method == http.MethodPost {
		text, err := s.service.TranscribeAudio(r.Context(), owner, parts[0])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"text": text})
		return
	}

	if len(parts) == 2 && parts[1] == "url" && r.Method == http.MethodGet {
		url, err := s.service.AudioURL(r.Context(), owner, parts[0])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"url": url})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeBodyError(w, err)
		return
	}
	session, err := s.service.SignUp(r.Context(), body.Email, body.Password, body.DisplayName)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload(session))
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeBodyError(w, err)
		return
	}
	session, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func sessionPayload(session AuthSession) map[string]any {
	return map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"email":        session.Email,
		"displayName":  session.DisplayName,
		"expiresAt":    session.ExpiresAt.Unix(),
	}
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (AuthSession, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return AuthSession{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return AuthSession{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return AuthSession{}, false
	}
	return session, true
}

// fail writes the mapped error. Unexpected errors are logged since their
// detail never reaches the client.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error("request failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Body != nil {
			r.Body = http.MaxBytesReader(writer, r.Body, bodyLimit(r.URL.Path))
		}
		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// writeFile sends an export as a download.
func writeFile(w http.ResponseWriter, result *export.Result) {
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": result.Filename})
	if disposition == "" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func exportFormat(w http.ResponseWriter, r *http.Request) (export.Format, bool) {
	raw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if raw == "" {
		raw = string(export.FormatMarkdown)
	}
	format, ok := export.ParseFormat(raw)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be md, pdf or docx", nil)
		return "", false
	}
	return format, true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", name+" must be a non-negative integer", nil)
		return 0, false
	}
	return parsed, true
}

const (
	defaultBodyLimit = 1 << 20
	// Base64 inflates an upload by a third; the rest is JSON framing.
	audioBodyLimit = audio.MaxUploadBytes/3*4 + 1<<20
)

var errBodyTooLarge = errors.New("request body too large")

func bodyLimit(path string) int64 {
	if path == "/api/audio" {
		return audioBodyLimit
	}
	return defaultBodyLimit
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func writeBodyError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", err.Error(), nil)
		return
	}
	writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", store.ErrNotFound.Error(), nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "TIMEOUT", "Request timed out", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
