package notion

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

type Kind string

const (
	KindDatabase Kind = "database"
	KindPage     Kind = "page"
	KindUnknown  Kind = "unknown"
)

const (
	untitledDatabase = "未命名数据库"
	untitledPage     = "未命名页面"
	unrecognizedID   = "无法识别此 ID，请确保已将集成添加到对应的页面或数据库"
)

var (
	hexRun   = regexp.MustCompile(`(?i)[a-f0-9]{32}`)
	hexToken = regexp.MustCompile(`(?i)^[a-f0-9]{32}$`)
)

// Target is what a user-supplied identifier resolved to.
type Target struct {
	Kind  Kind   `json:"type"`
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	// Reason is set for KindUnknown.
	Reason string `json:"reason,omitempty"`

	titleProperty string
}

// CleanID normalizes a raw id, a hyphenated UUID or a notion.so URL. Input it
// cannot make sense of is returned trimmed and dehyphenated rather than
// rejected.
func CleanID(raw string) string {
	id := strings.TrimSpace(raw)
	if strings.Contains(id, "notion.so") || strings.Contains(id, "notion.site") {
		if match := hexRun.FindString(id); match != "" {
			id = match
		}
	}
	if strings.Contains(id, "/") {
		parts := strings.Split(id, "/")
		id = parts[len(parts)-1]
	}
	id = strings.ReplaceAll(id, "-", "")
	if hexToken.MatchString(id) {
		id = fmt.Sprintf("%s-%s-%s-%s-%s", id[0:8], id[8:12], id[12:16], id[16:20], id[20:])
	}
	return id
}

type lookupAPI interface {
	RetrieveDatabase(ctx context.Context, id string) (Database, error)
	RetrievePage(ctx context.Context, id string) (Page, error)
}

// Resolver classifies an identifier by probing it as a database and then as a
// page. It never writes.
type Resolver struct {
	api lookupAPI
}

func NewResolver(api lookupAPI) *Resolver {
	return &Resolver{api: api}
}

// Resolve returns KindUnknown with a reason when both probes are rejected.
// Transport failures, 5xx answers and a missing token are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, raw string) (Target, error) {
	id := CleanID(raw)
	if id == "" {
		return Target{Kind: KindUnknown, ID: id, Reason: unrecognizedID}, nil
	}

	db, err := r.api.RetrieveDatabase(ctx, id)
	if err == nil {
		title := db.PlainTitle()
		if title == "" {
			title = untitledDatabase
		}
		return Target{Kind: KindDatabase, ID: id, Title: title, titleProperty: db.TitleProperty()}, nil
	}
	if errors.Is(err, ErrMissingToken) {
		return Target{}, err
	}
	if !isClientError(err) {
		return Target{}, fmt.Errorf("probe database %s: %w", id, err)
	}

	page, err := r.api.RetrievePage(ctx, id)
	if err == nil {
		title := page.PlainTitle()
		if title == "" {
			title = untitledPage
		}
		return Target{Kind: KindPage, ID: id, Title: title}, nil
	}
	if !isClientError(err) {
		return Target{}, fmt.Errorf("probe page %s: %w", id, err)
	}
	return Target{Kind: KindUnknown, ID: id, Reason: unrecognizedID}, nil
}
