package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"workreport/api/internal/archive"
	"workreport/api/internal/auth"
	"workreport/api/internal/authpw"
	"workreport/api/internal/config"
	"workreport/api/internal/export"
	"workreport/api/internal/llm"
	"workreport/api/internal/notion"
	"workreport/api/internal/report"
	"workreport/api/internal/search"
	"workreport/api/internal/session"
	"workreport/api/internal/store"
	"workreport/api/internal/util"
)

// AuthSession is an issued access/refresh token pair.
type AuthSession struct {
	Token        string
	RefreshToken string
	UserID       string
	Email        string
	DisplayName  string
	ExpiresAt    time.Time
}

func (s AuthSession) Owner() store.OwnerID {
	return store.OwnerID(s.UserID)
}

type dataStore interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user store.User) error
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	UpdateNotionTarget(ctx context.Context, owner store.OwnerID, targetID string) (bool, error)
	refreshStore

	CreateSession(ctx context.Context, item store.Session, turns ...store.Turn) error
	GetSession(ctx context.Context, owner store.OwnerID, sessionID string) (store.Session, error)
	ListSessions(ctx context.Context, owner store.OwnerID, opts store.ListOptions) ([]store.Session, error)
	AppendTurns(ctx context.Context, owner store.OwnerID, sessionID string, turns ...store.Turn) error
	CompleteSession(ctx context.Context, owner store.OwnerID, title string, item store.Report) error
	UpdateSessionStatus(ctx context.Context, owner store.OwnerID, sessionID string, status store.SessionStatus) (bool, error)

	GetReport(ctx context.Context, owner store.OwnerID, reportID string) (store.Report, error)
	ListReports(ctx context.Context, owner store.OwnerID, opts store.ListOptions) ([]store.Report, error)
	UpdateReport(ctx context.Context, owner store.OwnerID, reportID string, fields store.ReportFields, rendered string) (store.Report, error)
	DeleteReport(ctx context.Context, owner store.OwnerID, reportID string) (bool, error)
	BeginReportSync(ctx context.Context, owner store.OwnerID, reportID string) (bool, error)
	UpdateReportSync(ctx context.Context, owner store.OwnerID, reportID string, result store.SyncResult) (bool, error)

	CreateWeeklyReport(ctx context.Context, item store.WeeklyReport) error
	GetWeeklyReport(ctx context.Context, owner store.OwnerID, weeklyID string) (store.WeeklyReport, error)
	ListWeeklyReports(ctx context.Context, owner store.OwnerID, opts store.ListOptions) ([]store.WeeklyReport, error)
	UpdateWeeklyReport(ctx context.Context, owner store.OwnerID, weeklyID, title string, fields store.WeeklyFields, rendered string) (store.WeeklyReport, error)
	DeleteWeeklyReport(ctx context.Context, owner store.OwnerID, weeklyID string) (bool, error)
	BeginWeeklySync(ctx context.Context, owner store.OwnerID, weeklyID string) (bool, error)
	UpdateWeeklySync(ctx context.Context, owner store.OwnerID, weeklyID string, result store.SyncResult) (bool, error)

	CreatePeriod(ctx context.Context, item store.OkrPeriod) error
	GetPeriod(ctx context.Context, owner store.OwnerID, periodID string) (store.OkrPeriod, error)
	ListPeriods(ctx context.Context, owner store.OwnerID) ([]store.OkrPeriod, error)
	GetActivePeriod(ctx context.Context, owner store.OwnerID, day string) (store.OkrPeriod, error)
	UpdatePeriod(ctx context.Context, owner store.OwnerID, periodID string, patch store.PeriodPatch) (store.OkrPeriod, error)
	DeletePeriod(ctx context.Context, owner store.OwnerID, periodID string) (bool, error)
	CreateObjective(ctx context.Context, item store.Objective) (bool, error)
	UpdateObjective(ctx context.Context, owner store.OwnerID, objectiveID string, patch store.ObjectivePatch) (bool, error)
	DeleteObjective(ctx context.Context, owner store.OwnerID, objectiveID string) (bool, error)
	CreateKeyResult(ctx context.Context, item store.KeyResult) (bool, error)
	UpdateKeyResult(ctx context.Context, owner store.OwnerID, keyResultID string, patch store.KeyResultPatch) (bool, error)
	DeleteKeyResult(ctx context.Context, owner store.OwnerID, keyResultID string) (bool, error)
	GetOkrTree(ctx context.Context, owner store.OwnerID, periodID string) (store.OkrTree, error)
}

// refreshStore holds hashed refresh tokens. Redis serves it when configured,
// Postgres otherwise.
type refreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type notionGateway interface {
	Configured() bool
	Resolve(ctx context.Context, rawID string) (notion.Target, error)
	Sync(ctx context.Context, rawID string, doc notion.Document) (notion.Result, error)
	ValidateToken(ctx context.Context) (string, error)
}

type reportIndex interface {
	Search(q search.Query) search.Response
	Index(record search.Record)
	Delete(id string)
}

type reportArchive interface {
	Record(owner store.OwnerID, kind archive.Kind, reportID, rendered, author, message string) (archive.Revision, error)
	History(owner store.OwnerID, kind archive.Kind, reportID string, limit int) ([]archive.Revision, error)
}

type reportExporter interface {
	Export(ctx context.Context, doc export.Document, format export.Format) (*export.Result, error)
}

type audioService interface {
	Upload(ctx context.Context, owner store.OwnerID, fileName, contentType string, data []byte) (store.AudioFile, error)
	Transcribe(ctx context.Context, owner store.OwnerID, audioID string) (string, error)
	URL(ctx context.Context, owner store.OwnerID, audioID string, ttl time.Duration) (string, error)
}

// Options wires the service. Store, LLM and Notion are required; the
// remaining components are optional and their endpoints answer 503 without
// them.
type Options struct {
	Config  config.Config
	Store   dataStore
	LLM     llm.Client
	Notion  notionGateway
	Refresh refreshStore
	Locker  session.Locker
	Search  reportIndex
	Archive reportArchive
	Export  reportExporter
	Audio   audioService
	Logger  *zap.Logger
}

type Service struct {
	cfg       config.Config
	store     dataStore
	refresh   refreshStore
	signer    *auth.Signer
	passwords *authpw.Service
	locale    report.Locale
	synth     *report.Synthesizer
	weekly    *report.Aggregator
	notion    notionGateway
	locker    session.Locker
	syncGroup singleflight.Group
	search    reportIndex
	archive   reportArchive
	exporter  reportExporter
	audio     audioService
	logger    *zap.Logger
	now       func() time.Time
}

func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	refresh := opts.Refresh
	if refresh == nil {
		refresh = opts.Store
	}
	locker := opts.Locker
	if locker == nil {
		locker = session.NewMemoryLock()
	}
	locale := report.LocaleFor(opts.Config.ReportLocale)
	return &Service{
		cfg:       opts.Config,
		store:     opts.Store,
		refresh:   refresh,
		signer:    auth.NewSigner(opts.Config.JWTSecret),
		passwords: authpw.NewService(opts.Store),
		locale:    locale,
		synth:     report.NewSynthesizer(opts.LLM, locale, logger.Named("synthesizer")),
		weekly:    report.NewAggregator(opts.LLM, opts.Store, locale, logger.Named("weekly")),
		notion:    opts.Notion,
		locker:    locker,
		search:    opts.Search,
		archive:   opts.Archive,
		exporter:  opts.Export,
		audio:     opts.Audio,
		logger:    logger,
		now:       time.Now,
	}
}

// Ping checks the database.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (AuthSession, error) {
	user, err := s.passwords.SignUp(ctx, authpw.SignUpRequest{Email: email, Password: password, DisplayName: displayName})
	if err != nil {
		var validation *authpw.ValidationError
		switch {
		case errors.As(err, &validation):
			return AuthSession{}, validationError(validation.Message)
		case errors.Is(err, authpw.ErrEmailTaken):
			return AuthSession{}, domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
		}
		return AuthSession{}, err
	}
	s.logger.Info("user signed up", zap.String("user_id", user.ID))
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (AuthSession, error) {
	user, err := s.passwords.SignIn(ctx, email, password)
	if err != nil {
		if errors.Is(err, authpw.ErrInvalidCredentials) {
			return AuthSession{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
		}
		return AuthSession{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the old one is revoked before the new
// pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (AuthSession, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return AuthSession{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	owner, err := s.refresh.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AuthSession{}, auth.ErrInvalidToken
		}
		return AuthSession{}, err
	}
	if err := s.refresh.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return AuthSession{}, err
	}
	user, err := s.store.GetUserByID(ctx, owner.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AuthSession{}, auth.ErrInvalidToken
		}
		return AuthSession{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (AuthSession, error) {
	token, expiresAt, err := s.signer.Issue(user.ID, user.Email, util.NewID("jti"), s.cfg.AccessTTL)
	if err != nil {
		return AuthSession{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	if err := s.refresh.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, s.now().Add(s.cfg.RefreshTTL)); err != nil {
		return AuthSession{}, err
	}

	return AuthSession{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Email:        user.Email,
		DisplayName:  user.DisplayName,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (AuthSession, error) {
	claims, err := s.signer.Parse(token)
	if err != nil {
		return AuthSession{}, err
	}
	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AuthSession{}, auth.ErrInvalidToken
		}
		return AuthSession{}, err
	}
	return AuthSession{
		Token:       token,
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		ExpiresAt:   time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	return s.refresh.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

// NotionConfigured reports whether a Notion token is present.
func (s *Service) NotionConfigured() bool {
	return s.notion != nil && s.notion.Configured()
}

// NotionSettings is the per-user sync configuration.
type NotionSettings struct {
	TargetID        string `json:"notionTargetId"`
	TokenConfigured bool   `json:"tokenConfigured"`
}

func (s *Service) GetNotionSettings(ctx context.Context, owner store.OwnerID) (NotionSettings, error) {
	user, err := s.store.GetUserByID(ctx, string(owner))
	if err != nil {
		return NotionSettings{}, mapStoreError(err)
	}
	return NotionSettings{TargetID: user.NotionTargetID, TokenConfigured: s.notion.Configured()}, nil
}

// UpdateNotionTarget stores the target in its normalized form. An empty
// value clears it.
func (s *Service) UpdateNotionTarget(ctx context.Context, owner store.OwnerID, rawID string) (NotionSettings, error) {
	targetID := ""
	if strings.TrimSpace(rawID) != "" {
		targetID = notion.CleanID(rawID)
	}
	ok, err := s.store.UpdateNotionTarget(ctx, owner, targetID)
	if err != nil {
		return NotionSettings{}, err
	}
	if !ok {
		return NotionSettings{}, notFoundError()
	}
	return NotionSettings{TargetID: targetID, TokenConfigured: s.notion.Configured()}, nil
}

// NotionCheck is the result of verifying a target against the live API.
type NotionCheck struct {
	Integration string        `json:"integration"`
	Target      notion.Target `json:"target"`
}

// VerifyNotion validates the token and resolves rawID, or the saved target
// when rawID is blank. It never writes to Notion.
func (s *Service) VerifyNotion(ctx context.Context, owner store.OwnerID, rawID string) (NotionCheck, error) {
	if strings.TrimSpace(rawID) == "" {
		settings, err := s.GetNotionSettings(ctx, owner)
		if err != nil {
			return NotionCheck{}, err
		}
		rawID = settings.TargetID
	}
	if strings.TrimSpace(rawID) == "" {
		return NotionCheck{}, notionTargetMissingError()
	}
	if !s.notion.Configured() {
		return NotionCheck{}, notionNotConfiguredError()
	}

	name, err := s.notion.ValidateToken(ctx)
	if err != nil {
		return NotionCheck{}, notionRemoteError(err)
	}
	target, err := s.notion.Resolve(ctx, rawID)
	if err != nil {
		return NotionCheck{}, notionRemoteError(err)
	}
	return NotionCheck{Integration: name, Target: target}, nil
}

func notionTargetMissingError() *DomainError {
	return domainError(http.StatusUnprocessableEntity, "NOTION_TARGET_MISSING", "Notion target is not set", nil)
}

func notionRemoteError(err error) error {
	if errors.Is(err, notion.ErrMissingToken) {
		return notionNotConfiguredError()
	}
	var apiErr *notion.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		return domainError(http.StatusBadGateway, "NOTION_TOKEN_INVALID", apiErr.Error(), nil)
	}
	return domainError(http.StatusBadGateway, "NOTION_UNAVAILABLE", err.Error(), nil)
}

// mapStoreError turns store.ErrNotFound into the caller-facing not-found
// error and passes everything else through.
func mapStoreError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFoundError()
	}
	if errors.Is(err, store.ErrSessionClosed) {
		return sessionClosedError()
	}
	return err
}

func sessionClosedError() *DomainError {
	return domainError(http.StatusConflict, "SESSION_CLOSED", store.ErrSessionClosed.Error(), nil)
}

func llmError(err error) error {
	if errors.Is(err, report.ErrExtraction) {
		return domainError(http.StatusBadGateway, "EXTRACTION_FAILED", err.Error(), nil)
	}
	if errors.Is(err, llm.ErrNotConfigured) {
		return unavailableError("LLM")
	}
	return domainError(http.StatusBadGateway, "LLM_FAILED", err.Error(), nil)
}

// today is the caller's calendar date in the server's zone.
func (s *Service) today() string {
	return s.now().Format(dateLayout)
}

const dateLayout = "2006-01-02"

func validDate(value string) bool {
	_, err := time.Parse(dateLayout, value)
	return err == nil
}
