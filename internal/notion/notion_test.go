package notion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"
)

const (
	bareID   = "1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d"
	hyphenID = "1a2b3c4d-5e6f-7a8b-9c0d-1e2f3a4b5c6d"
)

func TestCleanID(t *testing.T) {
	cases := map[string]string{
		bareID:                                       hyphenID,
		hyphenID:                                     hyphenID,
		"  " + bareID + "\n":                         hyphenID,
		"https://www.notion.so/acme/Daily-" + bareID: hyphenID,
		"https://www.notion.so/" + bareID + "?v=abc": hyphenID,
		"acme/" + bareID:                             hyphenID,
		"not-an-id":                                  "notanid",
		"":                                           "",
		"https://example.com/path/last-segment":      "lastsegment",
	}
	for in, want := range cases {
		if got := CleanID(in); got != want {
			t.Fatalf("CleanID(%q) = %q want %q", in, got, want)
		}
	}
}

func TestCleanIDURLAndBareIDAgree(t *testing.T) {
	fromURL := CleanID("https://www.notion.so/workspace/Reports-" + bareID)
	if fromURL != CleanID(bareID) {
		t.Fatalf("url and bare id normalize differently: %q vs %q", fromURL, CleanID(bareID))
	}
}

func TestSplitTextRoundTrip(t *testing.T) {
	body := strings.Repeat("日报", 2000) + "end"
	chunks := SplitText(body, MaxTextLen, "无")
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for _, chunk := range chunks {
		if utf8.RuneCountInString(chunk) > MaxTextLen {
			t.Fatalf("chunk longer than %d runes", MaxTextLen)
		}
		if !utf8.ValidString(chunk) {
			t.Fatal("chunk split a rune")
		}
	}
	if strings.Join(chunks, "") != body {
		t.Fatal("chunks do not concatenate back to the input")
	}

	exact := strings.Repeat("a", MaxTextLen)
	if got := SplitText(exact, MaxTextLen, "无"); len(got) != 1 || got[0] != exact {
		t.Fatalf("text at the limit must stay whole, got %d chunks", len(got))
	}
}

func TestSplitTextEmptyYieldsPlaceholder(t *testing.T) {
	got := SplitText("", MaxTextLen, "无")
	if len(got) != 1 || got[0] != "无" {
		t.Fatalf("expected single placeholder, got %#v", got)
	}
}

func TestBuildBlocksLayout(t *testing.T) {
	blocks := BuildBlocks(Document{
		Heading: "📅 工作日报 - 2025-01-06",
		Sections: []Section{
			{Heading: "📋 今日总结", Body: "ok"},
			{Heading: "✅ 工作内容", Body: strings.Repeat("x", MaxTextLen+1)},
			{Heading: "⚠️ 遇到的问题", Body: ""},
		},
	})
	wantTypes := []string{"heading_1", "heading_2", "paragraph", "heading_2", "paragraph", "paragraph", "heading_2", "paragraph", "divider"}
	if len(blocks) != len(wantTypes) {
		t.Fatalf("expected %d blocks, got %d", len(wantTypes), len(blocks))
	}
	for i, want := range wantTypes {
		if blocks[i].Type != want {
			t.Fatalf("block %d: type %s want %s", i, blocks[i].Type, want)
		}
	}
	if blocks[7].Text() != "无" {
		t.Fatalf("empty section should render the placeholder, got %q", blocks[7].Text())
	}

	raw, err := json.Marshal(blocks[len(blocks)-1])
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"object":"block","type":"divider","divider":{}}` {
		t.Fatalf("unexpected divider json %s", raw)
	}
}

type fakeNotion struct {
	mu       sync.Mutex
	server   *httptest.Server
	database bool
	page     bool
	status   int
	writes   []string
	reads    []string
	created  map[string]any
}

func newFakeNotion(t *testing.T) *fakeNotion {
	t.Helper()
	f := &fakeNotion{}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeNotion) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer secret_test" || r.Header.Get("Notion-Version") != DefaultVersion {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"unauthorized","message":"API token is invalid."}`))
		return
	}
	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"code":"internal_server_error","message":"upstream exploded"}`))
		return
	}

	notFound := func() {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"object_not_found","message":"Could not find object."}`))
	}
	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/databases/"):
		f.reads = append(f.reads, r.URL.Path)
		if !f.database {
			notFound()
			return
		}
		_, _ = w.Write([]byte(`{"id":"` + hyphenID + `","title":[{"plain_text":"日报库"}],"properties":{"名称":{"type":"title"},"Date":{"type":"date"}}}`))
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/pages/"):
		f.reads = append(f.reads, r.URL.Path)
		if !f.page {
			notFound()
			return
		}
		_, _ = w.Write([]byte(`{"id":"` + hyphenID + `","url":"https://www.notion.so/Journal-` + bareID + `","properties":{"title":{"type":"title","title":[{"plain_text":"Journal"}]}}}`))
	case r.Method == http.MethodPost && r.URL.Path == "/pages":
		f.writes = append(f.writes, "create")
		_ = json.NewDecoder(r.Body).Decode(&f.created)
		_, _ = w.Write([]byte(`{"id":"new-page-id","url":"https://www.notion.so/new-page-id"}`))
	case r.Method == http.MethodPatch && strings.HasSuffix(r.URL.Path, "/children"):
		f.writes = append(f.writes, "append")
		_, _ = w.Write([]byte(`{"results":[]}`))
	case r.Method == http.MethodGet && r.URL.Path == "/users/me":
		_, _ = w.Write([]byte(`{"id":"bot-1","name":"Report Bot"}`))
	default:
		notFound()
	}
}

func (f *fakeNotion) client(token string) *Client {
	return NewClient(Config{Token: token, BaseURL: f.server.URL}, nil)
}

var testDoc = Document{
	Title:    "工作日报 - 2025-01-06",
	Heading:  "📅 工作日报 - 2025-01-06",
	Sections: []Section{{Heading: "📋 今日总结", Body: "ok"}},
}

func TestResolveDatabase(t *testing.T) {
	f := newFakeNotion(t)
	f.database = true
	target, err := NewResolver(f.client("secret_test")).Resolve(context.Background(), "https://www.notion.so/x/"+bareID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if target.Kind != KindDatabase || target.Title != "日报库" || target.ID != hyphenID {
		t.Fatalf("unexpected target %#v", target)
	}
	if len(f.writes) != 0 {
		t.Fatal("resolver must not write")
	}
}

func TestResolveFallsBackToPage(t *testing.T) {
	f := newFakeNotion(t)
	f.page = true
	target, err := NewResolver(f.client("secret_test")).Resolve(context.Background(), bareID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if target.Kind != KindPage || target.Title != "Journal" {
		t.Fatalf("unexpected target %#v", target)
	}
	if len(f.reads) != 2 || !strings.HasPrefix(f.reads[0], "/databases/") {
		t.Fatalf("expected database lookup then page lookup, got %v", f.reads)
	}
}

func TestResolveUnknownIsNotAnError(t *testing.T) {
	f := newFakeNotion(t)
	target, err := NewResolver(f.client("secret_test")).Resolve(context.Background(), "garbage")
	if err != nil {
		t.Fatalf("malformed input must not error: %v", err)
	}
	if target.Kind != KindUnknown || target.Reason != unrecognizedID {
		t.Fatalf("unexpected target %#v", target)
	}
}

func TestResolveServerErrorIsHard(t *testing.T) {
	f := newFakeNotion(t)
	f.status = http.StatusBadGateway
	if _, err := NewResolver(f.client("secret_test")).Resolve(context.Background(), bareID); err == nil {
		t.Fatal("expected transport failure to be an error")
	}
}

func TestResolveWithoutTokenReturnsConfigurationError(t *testing.T) {
	f := newFakeNotion(t)
	_, err := NewResolver(f.client("")).Resolve(context.Background(), bareID)
	if err != ErrMissingToken {
		t.Fatalf("expected the bare ErrMissingToken, got %v", err)
	}
}

func TestSyncToDatabaseCreatesOnePage(t *testing.T) {
	f := newFakeNotion(t)
	f.database = true
	res, err := NewExecutor(f.client("secret_test"), nil).Sync(context.Background(), bareID, testDoc)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !res.Success || res.Kind != KindDatabase || res.PageID != "new-page-id" || res.URL == "" {
		t.Fatalf("unexpected result %#v", res)
	}
	if strings.Join(f.writes, ",") != "create" {
		t.Fatalf("expected exactly one create, got %v", f.writes)
	}
	parent := f.created["parent"].(map[string]any)
	if parent["database_id"] != hyphenID {
		t.Fatalf("unexpected parent %#v", parent)
	}
	props := f.created["properties"].(map[string]any)
	if _, ok := props["名称"]; !ok {
		t.Fatalf("title should use the database's title property, got %#v", props)
	}
}

func TestSyncToPageAppendsThenFetchesURL(t *testing.T) {
	f := newFakeNotion(t)
	f.page = true
	res, err := NewExecutor(f.client("secret_test"), nil).Sync(context.Background(), hyphenID, testDoc)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !res.Success || res.Kind != KindPage || res.PageID != hyphenID {
		t.Fatalf("unexpected result %#v", res)
	}
	if res.URL != "https://www.notion.so/Journal-"+bareID {
		t.Fatalf("unexpected url %q", res.URL)
	}
	if strings.Join(f.writes, ",") != "append" {
		t.Fatalf("expected exactly one append, got %v", f.writes)
	}
}

func TestSyncUnknownShortCircuits(t *testing.T) {
	f := newFakeNotion(t)
	res, err := NewExecutor(f.client("secret_test"), nil).Sync(context.Background(), bareID, testDoc)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Success || res.Error != unrecognizedID {
		t.Fatalf("unexpected result %#v", res)
	}
	if len(f.writes) != 0 {
		t.Fatalf("unknown target must not write, got %v", f.writes)
	}
}

func TestSyncRemoteErrorBecomesResult(t *testing.T) {
	f := newFakeNotion(t)
	f.status = http.StatusInternalServerError
	res, err := NewExecutor(f.client("secret_test"), nil).Sync(context.Background(), bareID, testDoc)
	if err != nil {
		t.Fatalf("remote errors should not be returned: %v", err)
	}
	if res.Success || !strings.Contains(res.Error, "upstream exploded") {
		t.Fatalf("unexpected result %#v", res)
	}
}

func TestSyncWithoutTokenFailsAtFirstUse(t *testing.T) {
	f := newFakeNotion(t)
	client := f.client("")
	if client.Configured() {
		t.Fatal("client without token reports configured")
	}
	_, err := NewExecutor(client, nil).Sync(context.Background(), bareID, testDoc)
	if !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	if err.Error() != "NOTION_API_TOKEN 环境变量未配置" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if len(f.reads)+len(f.writes) != 0 {
		t.Fatal("no request should be made without a token")
	}
}

func TestValidateToken(t *testing.T) {
	f := newFakeNotion(t)
	name, err := NewExecutor(f.client("secret_test"), nil).ValidateToken(context.Background())
	if err != nil || name != "Report Bot" {
		t.Fatalf("unexpected validation %q %v", name, err)
	}
	_, err = NewExecutor(f.client("wrong"), nil).ValidateToken(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
}
