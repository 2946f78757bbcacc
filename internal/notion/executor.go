package notion

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// Result is the outcome of one sync. Failures are carried in Error rather
// than returned.
type Result struct {
	Success bool   `json:"success"`
	Kind    Kind   `json:"type,omitempty"`
	PageID  string `json:"pageId,omitempty"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
}

type writeAPI interface {
	lookupAPI
	CreatePage(ctx context.Context, databaseID, titleProperty, title string, blocks []Block) (Page, error)
	AppendBlocks(ctx context.Context, pageID string, blocks []Block) error
	Me(ctx context.Context) (User, error)
}

// Executor writes a document to whatever a target id resolves to: a new row
// for a database, appended blocks for a page. It performs at most one write
// and never retries.
type Executor struct {
	api      writeAPI
	resolver *Resolver
	logger   *zap.Logger
}

func NewExecutor(api writeAPI, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{api: api, resolver: NewResolver(api), logger: logger}
}

// Configured reports whether the underlying client carries a token.
func (e *Executor) Configured() bool {
	if c, ok := e.api.(interface{ Configured() bool }); ok {
		return c.Configured()
	}
	return true
}

// Resolve exposes the resolver for settings verification.
func (e *Executor) Resolve(ctx context.Context, rawID string) (Target, error) {
	return e.resolver.Resolve(ctx, rawID)
}

// Sync returns an error only for ErrMissingToken; every other failure is a
// Result with Success false.
func (e *Executor) Sync(ctx context.Context, rawID string, doc Document) (Result, error) {
	target, err := e.resolver.Resolve(ctx, rawID)
	if err != nil {
		if errors.Is(err, ErrMissingToken) {
			return Result{}, err
		}
		return e.failed(KindUnknown, err), nil
	}

	blocks := BuildBlocks(doc)
	switch target.Kind {
	case KindDatabase:
		page, err := e.api.CreatePage(ctx, target.ID, target.titleProperty, doc.Title, blocks)
		if err != nil {
			return e.failed(target.Kind, err), nil
		}
		e.logger.Info("notion page created in database", zap.String("database_id", target.ID), zap.String("page_id", page.ID))
		return Result{Success: true, Kind: target.Kind, PageID: page.ID, URL: page.URL}, nil

	case KindPage:
		if err := e.api.AppendBlocks(ctx, target.ID, blocks); err != nil {
			return e.failed(target.Kind, err), nil
		}
		url := pageURL(target.ID)
		if page, err := e.api.RetrievePage(ctx, target.ID); err != nil {
			e.logger.Warn("notion page lookup after append failed", zap.String("page_id", target.ID), zap.Error(err))
		} else if page.URL != "" {
			url = page.URL
		}
		e.logger.Info("notion blocks appended", zap.String("page_id", target.ID), zap.Int("blocks", len(blocks)))
		return Result{Success: true, Kind: target.Kind, PageID: target.ID, URL: url}, nil

	default:
		return Result{Success: false, Kind: KindUnknown, Error: target.Reason}, nil
	}
}

// ValidateToken returns the integration's name, or its id when unnamed.
func (e *Executor) ValidateToken(ctx context.Context) (string, error) {
	me, err := e.api.Me(ctx)
	if err != nil {
		return "", err
	}
	if me.Name != "" {
		return me.Name, nil
	}
	return me.ID, nil
}

func (e *Executor) failed(kind Kind, err error) Result {
	e.logger.Warn("notion sync failed", zap.String("kind", string(kind)), zap.Error(err))
	msg := err.Error()
	if msg == "" {
		msg = "同步失败"
	}
	return Result{Success: false, Kind: kind, Error: msg}
}

func pageURL(id string) string {
	return "https://www.notion.so/" + strings.ReplaceAll(id, "-", "")
}
