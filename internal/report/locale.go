package report

import (
	"fmt"
	"strings"
	"time"
)

// Locale holds every user-visible string the report pipeline produces.
type Locale struct {
	Code        string
	Placeholder string

	DailyTitle   string // format: date
	DailyHeading string // format: date
	Summary      string
	Insights     string
	WorkContent  string
	Completion   string
	Problems     string
	TomorrowPlan string

	WeeklyTitle      string // format: year, week
	WeeklySummary    string
	OkrProgress      string
	Achievements     string
	WeeklyProblems   string
	NextWeekPlan     string
	ProgressLabel    string
	RelatedWorkLabel string
	NoOkrMarker      string

	SessionTitle     string // format: date
	CompletedTitle   string // format: summary prefix
	Welcome          string
	UserSpeaker      string
	AssistantSpeaker string

	InterviewPrompt  string
	ExtractionPrompt string
	WeeklyPrompt     string
}

var locales = map[string]Locale{
	"zh": {
		Code:        "zh",
		Placeholder: "无",

		DailyTitle:   "工作日报 - %s",
		DailyHeading: "📅 工作日报 - %s",
		Summary:      "📋 今日总结",
		Insights:     "💡 业务洞察与思考",
		WorkContent:  "✅ 工作内容",
		Completion:   "🎯 完成情况",
		Problems:     "⚠️ 遇到的问题",
		TomorrowPlan: "📅 明日计划",

		WeeklyTitle:      "%d年第%d周工作周报",
		WeeklySummary:    "📋 本周总结",
		OkrProgress:      "🎯 OKR 进展",
		Achievements:     "🏆 主要成果",
		WeeklyProblems:   "⚠️ 问题和挑战",
		NextWeekPlan:     "📅 下周计划",
		ProgressLabel:    "进展：",
		RelatedWorkLabel: "相关工作：",
		NoOkrMarker:      "（本周未关联 OKR）",

		SessionTitle:     "日报 - %s",
		CompletedTitle:   "日报 - %s...",
		Welcome:          "你好！我是你的日报助手。请告诉我你今天主要完成了哪些工作？",
		UserSpeaker:      "用户",
		AssistantSpeaker: "助手",

		InterviewPrompt:  zhInterviewPrompt,
		ExtractionPrompt: zhExtractionPrompt,
		WeeklyPrompt:     zhWeeklyPrompt,
	},
	"en": {
		Code:        "en",
		Placeholder: "none",

		DailyTitle:   "Daily Report - %s",
		DailyHeading: "📅 Daily Report - %s",
		Summary:      "📋 Summary",
		Insights:     "💡 Business Insights",
		WorkContent:  "✅ Work Content",
		Completion:   "🎯 Completion Status",
		Problems:     "⚠️ Problems",
		TomorrowPlan: "📅 Plan for Tomorrow",

		WeeklyTitle:      "%d Week %d Report",
		WeeklySummary:    "📋 Weekly Summary",
		OkrProgress:      "🎯 OKR Progress",
		Achievements:     "🏆 Achievements",
		WeeklyProblems:   "⚠️ Problems and Challenges",
		NextWeekPlan:     "📅 Plan for Next Week",
		ProgressLabel:    "Progress: ",
		RelatedWorkLabel: "Related work: ",
		NoOkrMarker:      "(no OKR linked to this week)",

		SessionTitle:     "Report - %s",
		CompletedTitle:   "Report - %s...",
		Welcome:          "Hi! I'm your daily report assistant. What did you mainly work on today?",
		UserSpeaker:      "User",
		AssistantSpeaker: "Assistant",

		InterviewPrompt:  enInterviewPrompt,
		ExtractionPrompt: enExtractionPrompt,
		WeeklyPrompt:     enWeeklyPrompt,
	},
}

// LocaleFor returns the named locale, falling back to zh.
func LocaleFor(code string) Locale {
	if l, ok := locales[strings.ToLower(strings.TrimSpace(code))]; ok {
		return l
	}
	return locales["zh"]
}

// Or returns text, or the placeholder when text is blank.
func (l Locale) Or(text string) string {
	if strings.TrimSpace(text) == "" {
		return l.Placeholder
	}
	return text
}

func (l Locale) DailyTitleFor(date string) string {
	return fmt.Sprintf(l.DailyTitle, date)
}

func (l Locale) SessionTitleFor(date string) string {
	return fmt.Sprintf(l.SessionTitle, date)
}

// CompletedTitleFor titles a session after its report exists, using the
// first 20 runes of the summary.
func (l Locale) CompletedTitleFor(summary string) string {
	runes := []rune(strings.TrimSpace(summary))
	if len(runes) > 20 {
		runes = runes[:20]
	}
	return fmt.Sprintf(l.CompletedTitle, string(runes))
}

// WeeklyTitleFor names a week by the ISO week of its first day.
func (l Locale) WeeklyTitleFor(weekStart time.Time) string {
	year, week := weekStart.ISOWeek()
	return fmt.Sprintf(l.WeeklyTitle, year, week)
}
