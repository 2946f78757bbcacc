package report

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"workreport/api/internal/llm"
	"workreport/api/internal/store"
)

type scriptedLLM struct {
	mu       sync.Mutex
	out      string
	err      error
	requests []llm.Request
}

func (s *scriptedLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.out, s.err
}

func (s *scriptedLLM) last() llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func TestDetectReadinessStripsEveryOccurrence(t *testing.T) {
	cases := []struct {
		in    string
		want  string
		ready bool
	}{
		{in: "还有别的吗？", want: "还有别的吗？", ready: false},
		{in: "好的，信息已经足够。[READY_TO_GENERATE]", want: "好的，信息已经足够。", ready: true},
		{in: "[READY_TO_GENERATE] done [READY_TO_GENERATE]", want: "done", ready: true},
		{in: "[READY_TO_GENERATE]", want: "", ready: true},
		{in: "[READY_TO_GENERATE", want: "[READY_TO_GENERATE", ready: false},
	}
	for _, tc := range cases {
		got, ready := DetectReadiness(tc.in)
		if got != tc.want || ready != tc.ready {
			t.Fatalf("DetectReadiness(%q) = %q,%v want %q,%v", tc.in, got, ready, tc.want, tc.ready)
		}
		if strings.Contains(got, ReadySentinel) {
			t.Fatalf("sentinel left in %q", got)
		}
	}
}

func TestInterviewSendsSystemPromptAndHistory(t *testing.T) {
	client := &scriptedLLM{out: "明天打算做什么？ [READY_TO_GENERATE]"}
	synth := NewSynthesizer(client, LocaleFor("zh"), nil)

	reply, err := synth.Interview(context.Background(), []store.Turn{
		{Role: store.RoleAssistant, Content: "你好"},
		{Role: store.RoleUser, Content: "写了接口"},
	})
	if err != nil {
		t.Fatalf("interview: %v", err)
	}
	if !reply.Ready || reply.Text != "明天打算做什么？" {
		t.Fatalf("unexpected reply %#v", reply)
	}
	req := client.last()
	if req.Mode != "interview" || req.Schema != nil {
		t.Fatalf("interview must be free text, got %#v", req)
	}
	if len(req.Messages) != 3 || req.Messages[0].Role != llm.RoleSystem {
		t.Fatalf("unexpected messages %#v", req.Messages)
	}
}

func TestExtractBuildsTranscriptWithoutSystemTurns(t *testing.T) {
	client := &scriptedLLM{out: `{"workContent":"w","completionStatus":"c","problems":"","tomorrowPlan":"t","businessInsights":"b","summary":"s"}`}
	synth := NewSynthesizer(client, LocaleFor("zh"), nil)

	fields, err := synth.Extract(context.Background(), []store.Turn{
		{Role: store.RoleSystem, Content: "hidden"},
		{Role: store.RoleAssistant, Content: "今天做了什么？"},
		{Role: store.RoleUser, Content: "修复 bug"},
	})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if fields.WorkContent != "w" || fields.Summary != "s" || fields.Problems != "" {
		t.Fatalf("unexpected fields %#v", fields)
	}
	req := client.last()
	if req.Schema == nil || req.Schema.Name != "daily_report" {
		t.Fatalf("extraction must request the strict schema, got %#v", req.Schema)
	}
	transcript := req.Messages[1].Content
	if strings.Contains(transcript, "hidden") {
		t.Fatalf("system turn leaked into transcript: %q", transcript)
	}
	if transcript != "助手: 今天做了什么？\n用户: 修复 bug" {
		t.Fatalf("unexpected transcript %q", transcript)
	}
}

func TestExtractRejectsMalformedPayloads(t *testing.T) {
	payloads := map[string]string{
		"not json":      `here is your report`,
		"missing field": `{"workContent":"w","completionStatus":"c","problems":"p","tomorrowPlan":"t","summary":"s"}`,
		"null field":    `{"workContent":"w","completionStatus":"c","problems":null,"tomorrowPlan":"t","businessInsights":"b","summary":"s"}`,
		"wrong type":    `{"workContent":1,"completionStatus":"c","problems":"p","tomorrowPlan":"t","businessInsights":"b","summary":"s"}`,
		"extra field":   `{"workContent":"w","completionStatus":"c","problems":"p","tomorrowPlan":"t","businessInsights":"b","summary":"s","mood":"ok"}`,
		"array":         `[]`,
		"null":          `null`,
	}
	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			synth := NewSynthesizer(&scriptedLLM{out: payload}, LocaleFor("zh"), nil)
			fields, err := synth.Extract(context.Background(), nil)
			if !errors.Is(err, ErrExtraction) {
				t.Fatalf("expected ErrExtraction, got %v", err)
			}
			if fields != (store.ReportFields{}) {
				t.Fatalf("expected no partial fields, got %#v", fields)
			}
		})
	}
}

func TestExtractPropagatesTransportError(t *testing.T) {
	boom := errors.New("upstream down")
	synth := NewSynthesizer(&scriptedLLM{err: boom}, LocaleFor("zh"), nil)
	if _, err := synth.Extract(context.Background(), nil); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
}

func TestRenderDailyUsesPlaceholderAndFixedOrder(t *testing.T) {
	l := LocaleFor("zh")
	text := RenderDaily("2025-01-06", store.ReportFields{WorkContent: "写代码", Summary: "顺利"}, l)

	if !strings.HasPrefix(text, "# 工作日报 - 2025-01-06\n") {
		t.Fatalf("unexpected title in %q", text)
	}
	if strings.Contains(text, "null") || strings.Contains(text, "undefined") {
		t.Fatalf("rendered text leaks empty markers: %q", text)
	}
	order := []string{l.Summary, l.Insights, l.WorkContent, l.Completion, l.Problems, l.TomorrowPlan}
	last := -1
	for _, heading := range order {
		idx := strings.Index(text, "## "+heading)
		if idx <= last {
			t.Fatalf("section %q out of order in %q", heading, text)
		}
		last = idx
	}
	if got := strings.Count(text, "\n无\n"); got != 4 {
		t.Fatalf("expected 4 placeholder bodies, got %d in %q", got, text)
	}
}

func TestRenderDailyIsPure(t *testing.T) {
	l := LocaleFor("en")
	fields := store.ReportFields{WorkContent: "a", CompletionStatus: "b", Problems: "c", TomorrowPlan: "d", BusinessInsights: "e", Summary: "f"}
	if RenderDaily("2025-01-06", fields, l) != RenderDaily("2025-01-06", fields, l) {
		t.Fatal("render must be deterministic")
	}
	edited := fields
	edited.Problems = "changed"
	if !strings.Contains(RenderDaily("2025-01-06", edited, l), "changed") {
		t.Fatal("render must reflect every field")
	}
}

func TestRenderWeeklyOmitsEmptyOkrSection(t *testing.T) {
	l := LocaleFor("zh")
	text := RenderWeekly("2025年第2周工作周报", store.WeeklyFields{Summary: "s", Achievements: []string{"上线", " "}}, l)
	if strings.Contains(text, l.OkrProgress) {
		t.Fatalf("empty okr progress should be omitted: %q", text)
	}
	if !strings.Contains(text, "- 上线") || strings.Contains(text, "- \n") {
		t.Fatalf("unexpected achievements rendering: %q", text)
	}

	withOkr := RenderWeekly("t", store.WeeklyFields{OkrProgress: []store.OkrProgress{{ObjectiveTitle: "增长", Progress: "50%"}}}, l)
	if !strings.Contains(withOkr, "### 增长\n进展：50%\n相关工作：无") {
		t.Fatalf("unexpected okr rendering: %q", withOkr)
	}
}

func TestLocaleTitles(t *testing.T) {
	zh := LocaleFor("zh")
	if got := zh.WeeklyTitleFor(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)); got != "2025年第1周工作周报" {
		t.Fatalf("unexpected weekly title %q", got)
	}
	if got := zh.CompletedTitleFor("一二三四五六七八九十一二三四五六七八九十多余"); got != "日报 - 一二三四五六七八九十一二三四五六七八九十..." {
		t.Fatalf("unexpected completed title %q", got)
	}
	if LocaleFor("fr").Code != "zh" {
		t.Fatal("unknown locale should fall back to zh")
	}
	if LocaleFor(" EN ").Placeholder != "none" {
		t.Fatal("locale lookup should be case-insensitive")
	}
}

func TestKeyResultProgress(t *testing.T) {
	cases := []struct {
		current, target string
		want            int
		ok              bool
	}{
		{"50", "100", 50, true},
		{"90%", "100%", 90, true},
		{"1", "3", 33, true},
		{"12 users", "10 users", 120, true},
		{"about half", "100", 0, false},
		{"5", "0", 0, false},
		{"", "", 0, false},
	}
	for _, tc := range cases {
		got, ok := KeyResultProgress(tc.current, tc.target)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("KeyResultProgress(%q,%q) = %d,%v want %d,%v", tc.current, tc.target, got, ok, tc.want, tc.ok)
		}
	}
}

func TestWithProgressLeavesUnparseableNil(t *testing.T) {
	tree := WithProgress(store.OkrTree{Objectives: []store.Objective{{KeyResults: []store.KeyResult{
		{CurrentValue: "3", TargetValue: "4"},
		{CurrentValue: "todo", TargetValue: "4"},
	}}}})
	krs := tree.Objectives[0].KeyResults
	if krs[0].ProgressPercent == nil || *krs[0].ProgressPercent != 75 {
		t.Fatalf("expected 75%%, got %v", krs[0].ProgressPercent)
	}
	if krs[1].ProgressPercent != nil {
		t.Fatalf("expected nil progress, got %v", *krs[1].ProgressPercent)
	}
}
