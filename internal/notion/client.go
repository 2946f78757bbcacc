// Package notion syncs rendered reports into a Notion page or database.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.notion.com/v1"
	DefaultVersion = "2022-06-28"
)

// ErrMissingToken is returned on the first call made without a token.
var ErrMissingToken = errors.New("NOTION_API_TOKEN 环境变量未配置")

// APIError is a non-2xx answer from Notion.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Notion API 错误: %d", e.Status)
}

// isClientError reports whether err is a 4xx answer, which the resolver
// treats as "not this kind of object".
func isClientError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500
}

type Config struct {
	Token   string
	BaseURL string
	Version string
	Timeout time.Duration
}

type Client struct {
	token      string
	baseURL    string
	version    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		token:      strings.TrimSpace(cfg.Token),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		version:    cfg.Version,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Configured reports whether a token is present. It does not validate it.
func (c *Client) Configured() bool {
	return c.token != ""
}

type richTextOut struct {
	PlainText string `json:"plain_text"`
}

type property struct {
	Type  string        `json:"type"`
	Title []richTextOut `json:"title"`
}

type Database struct {
	ID         string              `json:"id"`
	URL        string              `json:"url"`
	Title      []richTextOut       `json:"title"`
	Properties map[string]property `json:"properties"`
}

// TitleProperty is the name of the database's title column.
func (d Database) TitleProperty() string {
	for name, prop := range d.Properties {
		if prop.Type == "title" {
			return name
		}
	}
	return "Name"
}

func (d Database) PlainTitle() string {
	if len(d.Title) > 0 {
		return d.Title[0].PlainText
	}
	return ""
}

type Page struct {
	ID         string              `json:"id"`
	URL        string              `json:"url"`
	Properties map[string]property `json:"properties"`
}

func (p Page) PlainTitle() string {
	for _, key := range []string{"title", "Name"} {
		if prop, ok := p.Properties[key]; ok && len(prop.Title) > 0 {
			return prop.Title[0].PlainText
		}
	}
	for _, prop := range p.Properties {
		if prop.Type == "title" && len(prop.Title) > 0 {
			return prop.Title[0].PlainText
		}
	}
	return ""
}

type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *Client) RetrieveDatabase(ctx context.Context, id string) (Database, error) {
	var out Database
	err := c.do(ctx, http.MethodGet, "/databases/"+id, nil, &out)
	return out, err
}

func (c *Client) RetrievePage(ctx context.Context, id string) (Page, error) {
	var out Page
	err := c.do(ctx, http.MethodGet, "/pages/"+id, nil, &out)
	return out, err
}

// CreatePage adds a row to a database with blocks as its body.
func (c *Client) CreatePage(ctx context.Context, databaseID, titleProperty, title string, blocks []Block) (Page, error) {
	body := map[string]any{
		"parent": map[string]any{"database_id": databaseID},
		"properties": map[string]any{
			titleProperty: map[string]any{
				"title": []richText{newRichText(title)},
			},
		},
		"children": blocks,
	}
	var out Page
	err := c.do(ctx, http.MethodPost, "/pages", body, &out)
	return out, err
}

func (c *Client) AppendBlocks(ctx context.Context, pageID string, blocks []Block) error {
	return c.do(ctx, http.MethodPatch, "/blocks/"+pageID+"/children", map[string]any{"children": blocks}, nil)
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var out User
	err := c.do(ctx, http.MethodGet, "/users/me", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.token == "" {
		return ErrMissingToken
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal notion request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build notion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", c.version)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notion %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read notion response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var decoded struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &decoded) == nil {
			apiErr.Code = decoded.Code
			apiErr.Message = decoded.Message
		}
		c.logger.Debug("notion api error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code),
		)
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode notion response: %w", err)
	}
	return nil
}
