package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"workreport/api/internal/llm"
	"workreport/api/internal/store"
	"workreport/api/internal/util"
)

var weeklyFieldNames = []string{"summary", "okrProgress", "achievements", "problems", "nextWeekPlan"}

var weeklySchema = llm.Schema{
	Name: "weekly_report",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary": map[string]any{"type": "string"},
			"okrProgress": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"objectiveId":    map[string]any{"type": "string"},
						"objectiveTitle": map[string]any{"type": "string"},
						"progress":       map[string]any{"type": "string"},
						"relatedWork":    map[string]any{"type": "string"},
					},
					"required":             []string{"objectiveId", "objectiveTitle", "progress", "relatedWork"},
					"additionalProperties": false,
				},
			},
			"achievements": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"problems":     map[string]any{"type": "string"},
			"nextWeekPlan": map[string]any{"type": "string"},
		},
		"required":             weeklyFieldNames,
		"additionalProperties": false,
	},
}

// WeeklySource is the storage the aggregator reads from and writes to.
type WeeklySource interface {
	GetReport(ctx context.Context, owner store.OwnerID, id string) (store.Report, error)
	GetOkrTree(ctx context.Context, owner store.OwnerID, periodID string) (store.OkrTree, error)
	CreateWeeklyReport(ctx context.Context, item store.WeeklyReport) error
}

type WeeklyInput struct {
	Owner     store.OwnerID
	WeekStart string
	WeekEnd   string
	PeriodID  string
	ReportIDs []string
}

type Aggregator struct {
	llm    llm.Client
	source WeeklySource
	locale Locale
	logger *zap.Logger
}

func NewAggregator(client llm.Client, source WeeklySource, locale Locale, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{llm: client, source: source, locale: locale, logger: logger}
}

// Aggregate folds the named daily reports and the optional OKR period into a
// persisted weekly report. Ids that do not resolve for the owner are skipped;
// SourceReportIDs keeps the list exactly as given.
func (a *Aggregator) Aggregate(ctx context.Context, in WeeklyInput) (store.WeeklyReport, error) {
	weekStart, err := time.Parse("2006-01-02", in.WeekStart)
	if err != nil {
		return store.WeeklyReport{}, fmt.Errorf("parse week start: %w", err)
	}
	if _, err := time.Parse("2006-01-02", in.WeekEnd); err != nil {
		return store.WeeklyReport{}, fmt.Errorf("parse week end: %w", err)
	}

	reports, err := a.fetchReports(ctx, in.Owner, in.ReportIDs)
	if err != nil {
		return store.WeeklyReport{}, err
	}

	var tree *store.OkrTree
	if in.PeriodID != "" {
		loaded, err := a.source.GetOkrTree(ctx, in.Owner, in.PeriodID)
		if err != nil {
			return store.WeeklyReport{}, fmt.Errorf("load okr tree: %w", err)
		}
		loaded = WithProgress(loaded)
		tree = &loaded
	}

	raw, err := a.llm.Complete(ctx, llm.Request{
		Mode: "weekly",
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: a.locale.WeeklyPrompt},
			{Role: llm.RoleUser, Content: a.prompt(in, reports, tree)},
		},
		Schema: &weeklySchema,
	})
	if err != nil {
		return store.WeeklyReport{}, fmt.Errorf("weekly synthesis: %w", err)
	}
	fields, err := decodeWeeklyFields(raw)
	if err != nil {
		a.logger.Warn("weekly extraction rejected", zap.Error(err), zap.Int("payload_len", len(raw)))
		return store.WeeklyReport{}, err
	}

	title := a.locale.WeeklyTitleFor(weekStart)
	sourceIDs := append([]string{}, in.ReportIDs...)
	item := store.WeeklyReport{
		ID:              util.NewID("wkr"),
		OwnerID:         in.Owner,
		PeriodID:        in.PeriodID,
		WeekStart:       in.WeekStart,
		WeekEnd:         in.WeekEnd,
		Title:           title,
		WeeklyFields:    fields,
		RenderedText:    RenderWeekly(title, fields, a.locale),
		SourceReportIDs: sourceIDs,
		SyncState:       store.SyncState{SyncStatus: store.SyncPending},
	}
	if err := a.source.CreateWeeklyReport(ctx, item); err != nil {
		return store.WeeklyReport{}, fmt.Errorf("save weekly report: %w", err)
	}
	a.logger.Info("weekly report generated",
		zap.String("weekly_id", item.ID),
		zap.Int("requested", len(in.ReportIDs)),
		zap.Int("found", len(reports)),
	)
	return item, nil
}

// fetchReports loads every id concurrently and returns the found reports in
// input order.
func (a *Aggregator) fetchReports(ctx context.Context, owner store.OwnerID, ids []string) ([]store.Report, error) {
	slots := make([]*store.Report, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range ids {
		g.Go(func() error {
			item, err := a.source.GetReport(gctx, owner, id)
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("load report %s: %w", id, err)
			}
			slots[i] = &item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	reports := make([]store.Report, 0, len(ids))
	for _, slot := range slots {
		if slot != nil {
			reports = append(reports, *slot)
		}
	}
	return reports, nil
}

func (a *Aggregator) prompt(in WeeklyInput, reports []store.Report, tree *store.OkrTree) string {
	l := a.locale
	var b strings.Builder
	fmt.Fprintf(&b, "%s ~ %s\n\n", in.WeekStart, in.WeekEnd)

	b.WriteString("## Daily reports\n")
	if len(reports) == 0 {
		b.WriteString(l.Placeholder + "\n")
	}
	for _, r := range reports {
		fmt.Fprintf(&b, "\n### %s\n", r.Date)
		for _, section := range DailySections(r.ReportFields, l) {
			fmt.Fprintf(&b, "%s: %s\n", section.Heading, section.Body)
		}
	}

	b.WriteString("\n## OKR\n")
	if tree == nil || len(tree.Objectives) == 0 {
		b.WriteString(l.NoOkrMarker + "\n")
		return b.String()
	}
	fmt.Fprintf(&b, "%s (%s ~ %s)\n", tree.Period.Title, tree.Period.StartDate, tree.Period.EndDate)
	for _, obj := range tree.Objectives {
		fmt.Fprintf(&b, "\nObjective ID: %s\nObjective: %s\n", obj.ID, obj.Title)
		if obj.Description != "" {
			fmt.Fprintf(&b, "%s\n", obj.Description)
		}
		for _, kr := range obj.KeyResults {
			fmt.Fprintf(&b, "- KR: %s (%s / %s %s)", kr.Title, kr.CurrentValue, kr.TargetValue, kr.Unit)
			if kr.ProgressPercent != nil {
				fmt.Fprintf(&b, " %d%%", *kr.ProgressPercent)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func decodeWeeklyFields(raw string) (store.WeeklyFields, error) {
	values, err := decodeStrictObject(raw, weeklyFieldNames)
	if err != nil {
		return store.WeeklyFields{}, err
	}
	var fields store.WeeklyFields
	for _, name := range []string{"summary", "problems", "nextWeekPlan"} {
		var value string
		if err := json.Unmarshal(values[name], &value); err != nil {
			return store.WeeklyFields{}, fmt.Errorf("%w: field %s is not a string", ErrExtraction, name)
		}
		switch name {
		case "summary":
			fields.Summary = value
		case "problems":
			fields.Problems = value
		case "nextWeekPlan":
			fields.NextWeekPlan = value
		}
	}
	if err := json.Unmarshal(values["achievements"], &fields.Achievements); err != nil {
		return store.WeeklyFields{}, fmt.Errorf("%w: achievements is not a string list", ErrExtraction)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(values["okrProgress"], &items); err != nil {
		return store.WeeklyFields{}, fmt.Errorf("%w: okrProgress is not a list", ErrExtraction)
	}
	fields.OkrProgress = make([]store.OkrProgress, 0, len(items))
	progressKeys := []string{"objectiveId", "objectiveTitle", "progress", "relatedWork"}
	for i, item := range items {
		entry, err := decodeStrictObject(string(item), progressKeys)
		if err != nil {
			return store.WeeklyFields{}, fmt.Errorf("okrProgress[%d]: %w", i, err)
		}
		var p store.OkrProgress
		targets := []*string{&p.ObjectiveID, &p.ObjectiveTitle, &p.Progress, &p.RelatedWork}
		for k, key := range progressKeys {
			if err := json.Unmarshal(entry[key], targets[k]); err != nil {
				return store.WeeklyFields{}, fmt.Errorf("%w: okrProgress[%d].%s is not a string", ErrExtraction, i, key)
			}
		}
		fields.OkrProgress = append(fields.OkrProgress, p)
	}
	if fields.Achievements == nil {
		fields.Achievements = []string{}
	}
	return fields, nil
}
