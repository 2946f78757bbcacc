package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIClientSendsStrictSchema(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("unexpected auth header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  {\"summary\":\"ok\"}  "}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL + "/", Model: "m"}, nil)
	out, err := client.Complete(context.Background(), Request{
		Mode:     "extract",
		Messages: []Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "hi"}},
		Schema:   &Schema{Name: "daily_report", Definition: map[string]any{"type": "object"}},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != `{"summary":"ok"}` {
		t.Fatalf("unexpected output %q", out)
	}

	format, ok := captured["response_format"].(map[string]any)
	if !ok || format["type"] != "json_schema" {
		t.Fatalf("expected json_schema response format, got %#v", captured["response_format"])
	}
	schema := format["json_schema"].(map[string]any)
	if schema["strict"] != true || schema["name"] != "daily_report" {
		t.Fatalf("expected strict named schema, got %#v", schema)
	}
	messages := captured["messages"].([]any)
	if len(messages) != 2 || messages[0].(map[string]any)["role"] != "system" {
		t.Fatalf("unexpected messages %#v", messages)
	}
}

func TestOpenAIClientOmitsSchemaInInterviewMode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if strings.Contains(string(raw), "response_format") {
			t.Fatalf("interview requests must not carry a schema: %s", raw)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"next question"}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: server.URL}, nil)
	out, err := client.Complete(context.Background(), Request{Mode: "interview", Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err != nil || out != "next question" {
		t.Fatalf("unexpected result %q %v", out, err)
	}
}

func TestOpenAIClientErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"empty choices", http.StatusOK, `{"choices":[]}`, func(err error) bool { return errors.Is(err, ErrEmptyResponse) }},
		{"blank content", http.StatusOK, `{"choices":[{"message":{"content":"   "}}]}`, func(err error) bool { return errors.Is(err, ErrEmptyResponse) }},
		{"remote failure", http.StatusBadGateway, `upstream down`, func(err error) bool { return err != nil && strings.Contains(err.Error(), "502") }},
		{"api error", http.StatusOK, `{"error":{"message":"quota"}}`, func(err error) bool { return err != nil && strings.Contains(err.Error(), "quota") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: server.URL}, nil)
			_, err := client.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})
			if !tc.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}

func TestOpenAIClientRequiresKey(t *testing.T) {
	client := NewOpenAIClient(OpenAIConfig{BaseURL: "http://127.0.0.1:1"}, nil)
	if _, err := client.Complete(context.Background(), Request{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestGeminiClientMapsRolesAndSchema(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"summary\":\"done\"}"}]}}]}`))
	}))
	defer server.Close()

	client, err := NewGeminiClient(context.Background(), GeminiConfig{APIKey: "g-key", Model: "gemini-test", BaseURL: server.URL}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	out, err := client.Complete(context.Background(), Request{
		Mode: "extract",
		Messages: []Message{
			{Role: RoleSystem, Content: "be strict"},
			{Role: RoleUser, Content: "I fixed a bug"},
			{Role: RoleAssistant, Content: "anything else?"},
		},
		Schema: &Schema{Name: "daily_report", Definition: map[string]any{"type": "object"}},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != `{"summary":"done"}` {
		t.Fatalf("unexpected output %q", out)
	}

	contents := captured["contents"].([]any)
	if len(contents) != 2 {
		t.Fatalf("system turns must move to systemInstruction, got %d contents", len(contents))
	}
	if role := contents[1].(map[string]any)["role"]; role != "model" {
		t.Fatalf("assistant turn must map to model role, got %v", role)
	}
	if _, ok := captured["systemInstruction"]; !ok {
		t.Fatal("expected systemInstruction in request")
	}
	generation := captured["generationConfig"].(map[string]any)
	if generation["responseMimeType"] != "application/json" {
		t.Fatalf("expected json mime type, got %#v", generation)
	}
	if _, ok := generation["responseJsonSchema"]; !ok {
		t.Fatalf("expected responseJsonSchema, got %#v", generation)
	}
}

func TestGeminiClientRequiresKey(t *testing.T) {
	if _, err := NewGeminiClient(context.Background(), GeminiConfig{}, nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

type stubClient struct {
	out string
	err error
}

func (s stubClient) Complete(context.Context, Request) (string, error) { return s.out, s.err }

func TestWithMetricsPassesThrough(t *testing.T) {
	boom := errors.New("boom")
	wrapped := WithMetrics(stubClient{err: boom})
	if _, err := wrapped.Complete(context.Background(), Request{Mode: "interview"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	out, err := WithMetrics(stubClient{out: "ok"}).Complete(context.Background(), Request{Mode: "interview"})
	if err != nil || out != "ok" {
		t.Fatalf("unexpected %q %v", out, err)
	}
}
