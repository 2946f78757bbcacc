package store

import (
	"context"
	"database/sql"
	"fmt"
)

const reportColumns = `id, owner_id, COALESCE(session_id, ''), to_char(report_date, 'YYYY-MM-DD'),
	work_content, completion_status, problems, tomorrow_plan, business_insights, summary,
	rendered_text, sync_status, external_id, external_url, synced_at, created_at, updated_at`

func scanReport(row rowScanner) (Report, error) {
	var item Report
	var owner string
	var syncedAt sql.NullTime
	err := row.Scan(
		&item.ID,
		&owner,
		&item.SessionID,
		&item.Date,
		&item.WorkContent,
		&item.CompletionStatus,
		&item.Problems,
		&item.TomorrowPlan,
		&item.BusinessInsights,
		&item.Summary,
		&item.RenderedText,
		&item.SyncStatus,
		&item.ExternalID,
		&item.ExternalURL,
		&syncedAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	item.OwnerID = OwnerID(owner)
	item.SyncedAt = syncedAtPtr(syncedAt)
	return item, err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertReport(ctx context.Context, db execer, item Report) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO daily_reports (
			id, owner_id, session_id, report_date,
			work_content, completion_status, problems, tomorrow_plan, business_insights, summary,
			rendered_text, sync_status
		)
		VALUES ($1, $2, NULLIF($3, ''), $4::date, $5, $6, $7, $8, $9, $10, $11, 'pending')
	`,
		item.ID, string(item.OwnerID), item.SessionID, item.Date,
		item.WorkContent, item.CompletionStatus, item.Problems, item.TomorrowPlan, item.BusinessInsights, item.Summary,
		item.RenderedText,
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetReport(ctx context.Context, owner OwnerID, reportID string) (Report, error) {
	item, err := scanReport(s.db.QueryRowContext(ctx, `
		SELECT `+reportColumns+`
		FROM daily_reports
		WHERE id=$1 AND owner_id=$2
	`, reportID, string(owner)))
	if err != nil {
		return Report{}, notFound(err)
	}
	return item, nil
}

var reportOrderColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"date":      "report_date",
}

func (s *PostgresStore) ListReports(ctx context.Context, owner OwnerID, opts ListOptions) ([]Report, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reportColumns+`
		FROM daily_reports
		WHERE owner_id=$1`+orderClause(opts, reportOrderColumns, "created_at"), string(owner))
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	items := make([]Report, 0)
	for rows.Next() {
		item, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return items, nil
}

// UpdateReport overwrites the structured fields and rendered text. Sync
// bookkeeping is left untouched.
func (s *PostgresStore) UpdateReport(ctx context.Context, owner OwnerID, reportID string, fields ReportFields, rendered string) (Report, error) {
	item, err := scanReport(s.db.QueryRowContext(ctx, `
		UPDATE daily_reports
		SET work_content=$3, completion_status=$4, problems=$5, tomorrow_plan=$6,
			business_insights=$7, summary=$8, rendered_text=$9, updated_at=NOW()
		WHERE id=$1 AND owner_id=$2
		RETURNING `+reportColumns,
		reportID, string(owner),
		fields.WorkContent, fields.CompletionStatus, fields.Problems, fields.TomorrowPlan,
		fields.BusinessInsights, fields.Summary, rendered,
	))
	if err != nil {
		return Report{}, notFound(err)
	}
	return item, nil
}

func (s *PostgresStore) DeleteReport(ctx context.Context, owner OwnerID, reportID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM daily_reports WHERE id=$1 AND owner_id=$2`, reportID, string(owner))
	if err != nil {
		return false, fmt.Errorf("delete report: %w", err)
	}
	return affected(result, "delete report")
}

func (s *PostgresStore) BeginReportSync(ctx context.Context, owner OwnerID, reportID string) (bool, error) {
	return s.beginSync(ctx, "daily_reports", owner, reportID)
}

func (s *PostgresStore) UpdateReportSync(ctx context.Context, owner OwnerID, reportID string, result SyncResult) (bool, error) {
	return s.updateSync(ctx, "daily_reports", owner, reportID, result)
}

// beginSync moves a failed record back to pending for a retry. Records in any
// other state are left alone; the result reports whether the record exists.
func (s *PostgresStore) beginSync(ctx context.Context, table string, owner OwnerID, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		WITH retried AS (
			UPDATE `+table+` SET sync_status='pending'
			WHERE id=$1 AND owner_id=$2 AND sync_status='failed'
			RETURNING id
		)
		SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id=$1 AND owner_id=$2)
	`, id, string(owner)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("begin sync %s: %w", table, err)
	}
	return exists, nil
}

// updateSync records a sync outcome. synced_at and the external handle are
// only written on success; a failure keeps the previous handle.
func (s *PostgresStore) updateSync(ctx context.Context, table string, owner OwnerID, id string, result SyncResult) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if result.Status == SyncSynced {
		res, err = s.db.ExecContext(ctx, `
			UPDATE `+table+`
			SET sync_status='synced', external_id=$3, external_url=$4, synced_at=NOW(), updated_at=NOW()
			WHERE id=$1 AND owner_id=$2
		`, id, string(owner), result.ExternalID, result.ExternalURL)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE `+table+`
			SET sync_status=$3, updated_at=NOW()
			WHERE id=$1 AND owner_id=$2
		`, id, string(owner), result.Status)
	}
	if err != nil {
		return false, fmt.Errorf("update sync %s: %w", table, err)
	}
	return affected(res, "update sync "+table)
}
