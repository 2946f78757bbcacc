package report

import (
	"fmt"
	"strings"

	"workreport/api/internal/store"
)

// Section is one labeled block of a rendered report.
type Section struct {
	Heading string
	Body    string
}

// DailySections lists the daily report sections in their fixed order with
// blank fields replaced by the placeholder.
func DailySections(fields store.ReportFields, l Locale) []Section {
	return []Section{
		{Heading: l.Summary, Body: l.Or(fields.Summary)},
		{Heading: l.Insights, Body: l.Or(fields.BusinessInsights)},
		{Heading: l.WorkContent, Body: l.Or(fields.WorkContent)},
		{Heading: l.Completion, Body: l.Or(fields.CompletionStatus)},
		{Heading: l.Problems, Body: l.Or(fields.Problems)},
		{Heading: l.TomorrowPlan, Body: l.Or(fields.TomorrowPlan)},
	}
}

// WeeklySections lists the weekly report sections in their fixed order. The
// OKR section is omitted when there is no progress to show.
func WeeklySections(fields store.WeeklyFields, l Locale) []Section {
	sections := []Section{{Heading: l.WeeklySummary, Body: l.Or(fields.Summary)}}
	if len(fields.OkrProgress) > 0 {
		sections = append(sections, Section{Heading: l.OkrProgress, Body: renderOkrProgress(fields.OkrProgress, l)})
	}
	sections = append(sections,
		Section{Heading: l.Achievements, Body: l.Or(renderList(fields.Achievements))},
		Section{Heading: l.WeeklyProblems, Body: l.Or(fields.Problems)},
		Section{Heading: l.NextWeekPlan, Body: l.Or(fields.NextWeekPlan)},
	)
	return sections
}

func renderOkrProgress(items []store.OkrProgress, l Locale) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "### %s\n", l.Or(item.ObjectiveTitle))
		fmt.Fprintf(&b, "%s%s\n", l.ProgressLabel, l.Or(item.Progress))
		fmt.Fprintf(&b, "%s%s", l.RelatedWorkLabel, l.Or(item.RelatedWork))
	}
	return b.String()
}

func renderList(items []string) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			lines = append(lines, "- "+item)
		}
	}
	return strings.Join(lines, "\n")
}

// RenderDaily is the full-text Markdown view of a daily report. It depends
// only on its arguments.
func RenderDaily(date string, fields store.ReportFields, l Locale) string {
	return renderMarkdown("# "+l.DailyTitleFor(date), DailySections(fields, l))
}

// RenderWeekly is the full-text Markdown view of a weekly report.
func RenderWeekly(title string, fields store.WeeklyFields, l Locale) string {
	return renderMarkdown("# "+title, WeeklySections(fields, l))
}

func renderMarkdown(title string, sections []Section) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	for _, section := range sections {
		fmt.Fprintf(&b, "\n## %s\n%s\n", section.Heading, section.Body)
	}
	return b.String()
}
