package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

const weeklyColumns = `id, owner_id, COALESCE(period_id, ''),
	to_char(week_start, 'YYYY-MM-DD'), to_char(week_end, 'YYYY-MM-DD'),
	title, summary, okr_progress, achievements, problems, next_week_plan,
	rendered_text, source_report_ids, sync_status, external_id, external_url, synced_at,
	created_at, updated_at`

func scanWeekly(row rowScanner) (WeeklyReport, error) {
	var item WeeklyReport
	var owner string
	var progressJSON, achievementsJSON, sourcesJSON []byte
	var syncedAt sql.NullTime
	if err := row.Scan(
		&item.ID,
		&owner,
		&item.PeriodID,
		&item.WeekStart,
		&item.WeekEnd,
		&item.Title,
		&item.Summary,
		&progressJSON,
		&achievementsJSON,
		&item.Problems,
		&item.NextWeekPlan,
		&item.RenderedText,
		&sourcesJSON,
		&item.SyncStatus,
		&item.ExternalID,
		&item.ExternalURL,
		&syncedAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return WeeklyReport{}, err
	}
	item.OwnerID = OwnerID(owner)
	item.SyncedAt = syncedAtPtr(syncedAt)

	item.OkrProgress = []OkrProgress{}
	item.Achievements = []string{}
	item.SourceReportIDs = []string{}
	if err := json.Unmarshal(progressJSON, &item.OkrProgress); err != nil {
		return WeeklyReport{}, fmt.Errorf("decode okr progress: %w", err)
	}
	if err := json.Unmarshal(achievementsJSON, &item.Achievements); err != nil {
		return WeeklyReport{}, fmt.Errorf("decode achievements: %w", err)
	}
	if err := json.Unmarshal(sourcesJSON, &item.SourceReportIDs); err != nil {
		return WeeklyReport{}, fmt.Errorf("decode source report ids: %w", err)
	}
	return item, nil
}

func weeklyJSON(fields WeeklyFields) (progress, achievements []byte, err error) {
	okr := fields.OkrProgress
	if okr == nil {
		okr = []OkrProgress{}
	}
	list := fields.Achievements
	if list == nil {
		list = []string{}
	}
	if progress, err = json.Marshal(okr); err != nil {
		return nil, nil, fmt.Errorf("encode okr progress: %w", err)
	}
	if achievements, err = json.Marshal(list); err != nil {
		return nil, nil, fmt.Errorf("encode achievements: %w", err)
	}
	return progress, achievements, nil
}

func (s *PostgresStore) CreateWeeklyReport(ctx context.Context, item WeeklyReport) error {
	progress, achievements, err := weeklyJSON(item.WeeklyFields)
	if err != nil {
		return err
	}
	sources := item.SourceReportIDs
	if sources == nil {
		sources = []string{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("encode source report ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO weekly_reports (
			id, owner_id, period_id, week_start, week_end, title, summary,
			okr_progress, achievements, problems, next_week_plan, rendered_text,
			source_report_ids, sync_status
		)
		VALUES ($1, $2, NULLIF($3, ''), $4::date, $5::date, $6, $7, $8::jsonb, $9::jsonb, $10, $11, $12, $13::jsonb, 'pending')
	`,
		item.ID, string(item.OwnerID), item.PeriodID, item.WeekStart, item.WeekEnd, item.Title, item.Summary,
		string(progress), string(achievements), item.Problems, item.NextWeekPlan, item.RenderedText,
		string(sourcesJSON),
	)
	if err != nil {
		return fmt.Errorf("create weekly report: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetWeeklyReport(ctx context.Context, owner OwnerID, weeklyID string) (WeeklyReport, error) {
	item, err := scanWeekly(s.db.QueryRowContext(ctx, `
		SELECT `+weeklyColumns+`
		FROM weekly_reports
		WHERE id=$1 AND owner_id=$2
	`, weeklyID, string(owner)))
	if err != nil {
		return WeeklyReport{}, notFound(err)
	}
	return item, nil
}

var weeklyOrderColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"weekStart": "week_start",
}

func (s *PostgresStore) ListWeeklyReports(ctx context.Context, owner OwnerID, opts ListOptions) ([]WeeklyReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+weeklyColumns+`
		FROM weekly_reports
		WHERE owner_id=$1`+orderClause(opts, weeklyOrderColumns, "created_at"), string(owner))
	if err != nil {
		return nil, fmt.Errorf("list weekly reports: %w", err)
	}
	defer rows.Close()

	items := make([]WeeklyReport, 0)
	for rows.Next() {
		item, err := scanWeekly(rows)
		if err != nil {
			return nil, fmt.Errorf("scan weekly report: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate weekly reports: %w", err)
	}
	return items, nil
}

// UpdateWeeklyReport overwrites title, structured fields and rendered text.
// Source report ids and sync bookkeeping are never changed here.
func (s *PostgresStore) UpdateWeeklyReport(ctx context.Context, owner OwnerID, weeklyID, title string, fields WeeklyFields, rendered string) (WeeklyReport, error) {
	progress, achievements, err := weeklyJSON(fields)
	if err != nil {
		return WeeklyReport{}, err
	}
	item, err := scanWeekly(s.db.QueryRowContext(ctx, `
		UPDATE weekly_reports
		SET title=$3, summary=$4, okr_progress=$5::jsonb, achievements=$6::jsonb,
			problems=$7, next_week_plan=$8, rendered_text=$9, updated_at=NOW()
		WHERE id=$1 AND owner_id=$2
		RETURNING `+weeklyColumns,
		weeklyID, string(owner), title, fields.Summary, string(progress), string(achievements),
		fields.Problems, fields.NextWeekPlan, rendered,
	))
	if err != nil {
		return WeeklyReport{}, notFound(err)
	}
	return item, nil
}

func (s *PostgresStore) DeleteWeeklyReport(ctx context.Context, owner OwnerID, weeklyID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM weekly_reports WHERE id=$1 AND owner_id=$2`, weeklyID, string(owner))
	if err != nil {
		return false, fmt.Errorf("delete weekly report: %w", err)
	}
	return affected(result, "delete weekly report")
}

func (s *PostgresStore) BeginWeeklySync(ctx context.Context, owner OwnerID, weeklyID string) (bool, error) {
	return s.beginSync(ctx, "weekly_reports", owner, weeklyID)
}

func (s *PostgresStore) UpdateWeeklySync(ctx context.Context, owner OwnerID, weeklyID string, result SyncResult) (bool, error) {
	return s.updateSync(ctx, "weekly_reports", owner, weeklyID, result)
}
