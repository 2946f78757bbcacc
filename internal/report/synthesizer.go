// Package report turns interview transcripts into structured daily reports
// and folds daily reports into weekly ones.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"workreport/api/internal/llm"
	"workreport/api/internal/store"
)

// ErrExtraction marks an LLM payload that does not match the required shape.
var ErrExtraction = errors.New("report extraction failed")

var dailyFieldNames = []string{"workContent", "completionStatus", "problems", "tomorrowPlan", "businessInsights", "summary"}

var dailySchema = llm.Schema{
	Name: "daily_report",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"workContent":      map[string]any{"type": "string", "description": "工作内容"},
			"completionStatus": map[string]any{"type": "string", "description": "完成情况"},
			"problems":         map[string]any{"type": "string", "description": "遇到的问题"},
			"tomorrowPlan":     map[string]any{"type": "string", "description": "明日计划"},
			"businessInsights": map[string]any{"type": "string", "description": "业务洞察与思考"},
			"summary":          map[string]any{"type": "string", "description": "总结"},
		},
		"required":             dailyFieldNames,
		"additionalProperties": false,
	},
}

// Reply is one interviewer turn.
type Reply struct {
	// Text is shown to the user and stored; the sentinel is already removed.
	Text  string
	Ready bool
}

type Synthesizer struct {
	llm    llm.Client
	locale Locale
	logger *zap.Logger
}

func NewSynthesizer(client llm.Client, locale Locale, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{llm: client, locale: locale, logger: logger}
}

func (s *Synthesizer) Locale() Locale {
	return s.locale
}

// Interview produces the next assistant turn for the full turn history.
func (s *Synthesizer) Interview(ctx context.Context, turns []store.Turn) (Reply, error) {
	messages := make([]llm.Message, 0, len(turns)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: s.locale.InterviewPrompt})
	for _, turn := range turns {
		messages = append(messages, llm.Message{Role: llm.Role(turn.Role), Content: turn.Content})
	}

	raw, err := s.llm.Complete(ctx, llm.Request{Mode: "interview", Messages: messages})
	if err != nil {
		return Reply{}, fmt.Errorf("interview turn: %w", err)
	}
	text, ready := DetectReadiness(raw)
	return Reply{Text: text, Ready: ready}, nil
}

// Extract converts the non-system turns into report fields. Any payload that
// is not exactly the six string fields is rejected with ErrExtraction.
func (s *Synthesizer) Extract(ctx context.Context, turns []store.Turn) (store.ReportFields, error) {
	transcript := s.transcript(turns)
	raw, err := s.llm.Complete(ctx, llm.Request{
		Mode: "extract",
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: s.locale.ExtractionPrompt},
			{Role: llm.RoleUser, Content: transcript},
		},
		Schema: &dailySchema,
	})
	if err != nil {
		return store.ReportFields{}, fmt.Errorf("extract report: %w", err)
	}

	fields, err := decodeDailyFields(raw)
	if err != nil {
		s.logger.Warn("report extraction rejected", zap.Error(err), zap.Int("payload_len", len(raw)))
		return store.ReportFields{}, err
	}
	return fields, nil
}

func (s *Synthesizer) transcript(turns []store.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case store.RoleUser:
			lines = append(lines, s.locale.UserSpeaker+": "+turn.Content)
		case store.RoleAssistant:
			lines = append(lines, s.locale.AssistantSpeaker+": "+turn.Content)
		}
	}
	return strings.Join(lines, "\n")
}

func decodeDailyFields(raw string) (store.ReportFields, error) {
	values, err := decodeStrictObject(raw, dailyFieldNames)
	if err != nil {
		return store.ReportFields{}, err
	}
	strs := map[string]string{}
	for _, name := range dailyFieldNames {
		var value string
		if err := json.Unmarshal(values[name], &value); err != nil {
			return store.ReportFields{}, fmt.Errorf("%w: field %s is not a string", ErrExtraction, name)
		}
		strs[name] = value
	}
	return store.ReportFields{
		WorkContent:      strs["workContent"],
		CompletionStatus: strs["completionStatus"],
		Problems:         strs["problems"],
		TomorrowPlan:     strs["tomorrowPlan"],
		BusinessInsights: strs["businessInsights"],
		Summary:          strs["summary"],
	}, nil
}

// decodeStrictObject parses raw as a JSON object that has exactly the
// required keys.
func decodeStrictObject(raw string, required []string) (map[string]json.RawMessage, error) {
	var values map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &values); err != nil {
		return nil, fmt.Errorf("%w: payload is not a JSON object: %v", ErrExtraction, err)
	}
	if values == nil {
		return nil, fmt.Errorf("%w: payload is null", ErrExtraction)
	}
	allowed := map[string]bool{}
	for _, name := range required {
		allowed[name] = true
		value, ok := values[name]
		if !ok || bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			return nil, fmt.Errorf("%w: missing field %s", ErrExtraction, name)
		}
	}
	for name := range values {
		if !allowed[name] {
			return nil, fmt.Errorf("%w: unexpected field %s", ErrExtraction, name)
		}
	}
	return values, nil
}
